// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 提供基于 Redis 的缓存管理能力，作为能力调用结果的共享缓存。

# 概述

Manager 封装 go-redis 客户端，负责连接生命周期管理，包括初始化、
后台健康检查与优雅关闭。所有键统一加上配置的前缀，
不同 crew 进程可以共享同一个 Redis 实例。

# 核心类型

  - Manager：缓存管理器，提供 Get/Set/Delete/Exists 等基础操作。
  - Config：缓存配置，包含地址、密码、连接池大小、默认 TTL、
    键前缀与健康检查间隔。
  - ResultStore：把 Manager 适配为 capability.ResultCache，
    未命中不视为错误。
  - Stats：从 INFO 输出解析的命中、未命中与内存统计。
*/
package cache
