// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 crew 提供任务依赖编排引擎：一组 Agent 与带依赖声明的任务，
按顺序流水线或层级管理两种流程执行到底，每个任务的输出写入
对应的产物路径，并在覆盖之前归档旧产物。

# 构建期校验

[Builder.Build] 一次性完成全部静态校验：重复或空的任务 ID、
未知依赖、未知 Agent、依赖环（错误信息带环路径）、调用了 Agent
未持有的能力、引用了非祖先任务的占位符、被分配任务的管理者，
以及缺少管理者的层级流程。所有问题都以配置错误返回，运行期不会再出现。

# 占位符

任务描述、期望输出与能力参数中的 {name} 在执行前渲染。name 可以是
运行输入、知识片段键（knowledge、knowledge.<source>）、祖先任务 ID
或内置的 {timestamp}。{{ 与 }} 表示字面量花括号。缺失的输入在
[Crew.Kickoff] 开始时一次性报告，不会产生任何副作用。

# 流程

  - Sequential：按拓扑序逐个执行，同时就绪的任务按声明顺序。
    MaxParallel > 1 时同一波就绪任务并发执行，结果与产物写入仍按声明顺序提交。
  - Hierarchical：每个就绪任务执行前先咨询 [Manager]，可批准、改派或
    打回上游返工；超过 MaxRework 次尝试以 NO_CONVERGENCE 失败。

# 运行上下文

[RunContext] 只追加不修改：同一任务的再次执行追加新的修订版本，
下游读取最新修订。
*/
package crew
