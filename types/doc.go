// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 crewflow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 capability、agent、crew、
archive、knowledge 等上层模块提供统一的错误契约与 context 传播工具。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，携带任务 ID、Retryable 与根因
  - 配置类错误码: CYCLIC_DEPENDENCY、UNRESOLVED_PLACEHOLDER、UNKNOWN_CAPABILITY 等，
    只在构建任务图或校验运行输入时产生
  - 运行类错误码: CAPABILITY_FAILURE、GENERATION_FAILURE、ARCHIVE_ERROR、
    NO_CONVERGENCE 等，总是带有失败任务的 ID

# 主要能力

  - Context 传播：WithRunID / WithTaskID / WithCrewName
  - 错误工具链：AsError / IsCode / IsConfiguration / IsRetryable / GetErrorCode
*/
package types
