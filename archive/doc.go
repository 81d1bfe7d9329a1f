// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 archive 实现任务产物的"先归档、再写入"协议。

# 概述

任务把输出写入 sink（文件路径）之前，sink 所在目录中已有的普通文件
会被移入该目录下的归档子目录（默认 "archive"，也可以是 "old posts"
之类的命名目录），保证历史产物永远不会被静默覆盖。

# 核心类型

  - Manager：进程级归档管理器，持有配置与按目录划分的互斥锁，
    同一目录上的轮转与写入串行执行。
  - Session：一次运行的归档会话，记录本次运行已轮转过的目录与
    已写入的 sink。

# 协议

  - 本次运行第一次写入目录 D 时，D 中所有普通文件移入 D/<folder>/，
    子目录（包括已有的归档目录）保持不动。
  - 同一运行内后续写入 D 中其他 sink 时不再轮转，本次运行写出的
    文件不会被自己的轮转带走。
  - 同一运行内重复写入同一个 sink 时，上一版本先移入归档目录，再写新内容。
  - 归档目录中发生重名时，新移入的文件改名为 name-N.ext。
  - 写入通过临时文件加 rename 完成。
  - 任何创建、移动、写入失败都返回 ARCHIVE_ERROR，已移动的文件保持原样。
*/
package archive
