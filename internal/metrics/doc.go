// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的编排指标采集能力，覆盖
运行、任务、能力调用、生成、归档与经理决策六大维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标。注册使用
promauto.With(registerer)，调用方可以传入独立的 Registry（测试、
多实例），传 nil 时落到默认 Registry。所有指标按 namespace 隔离。

Collector 的所有 Record 方法对 nil 接收者安全，未配置指标时
上层模块无需判空。

# 主要能力

  - 运行指标：运行总数与耗时，按 crew/process/status 分组。
  - 任务指标：任务执行总数与耗时，按 crew/task/status 分组。
  - 能力指标：调用总数、耗时与结果缓存命中，按 capability 分组。
  - 生成指标：生成调用总数与耗时，按 role/status 分组。
  - 归档指标：被轮转的文件数与写入结果，按 folder/status 分组。
  - 经理指标：层级流程中 approve/reassign/rework 决策计数。
*/
package metrics
