// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package capability 定义外部动作（搜索、读文件、视觉 OCR、生图）的统一调用契约。

# 概述

编排器把每个能力视为黑盒：一个名字加一个同步的
Invoke(ctx, args) -> (string, error)。Registry 在进程启动时构建一次，
构建时决定注入真实实现（ModeLive）还是确定性的模拟实现（ModeMock），
业务代码中不再按环境变量分支。

# 核心类型

  - Capability: 名字 + Invoke 的最小接口
  - Func: 函数适配器
  - Metadata: 超时、限流、结果缓存配置
  - Registry: 注册、冻结、查找与带观测的调用
  - ResultCache: 可选的结果缓存（internal/cache 提供 Redis 实现）

# 内置能力

  - web_search: Serper 兼容搜索 API
  - file_read: 读取单个文件
  - directory_read: 递归拼接目录下所有普通文件
  - image_generate: OpenAI 兼容生图接口
  - vision_ocr: OpenAI 兼容多模态接口提取图片文字

调用失败统一包装为 CAPABILITY_FAILURE，携带能力名、任务 ID 与根因；
空输出按原样返回，不会被替换为默认值。
*/
package capability
