// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 定义生成边界：编排引擎只关心一次生成调用的成功或失败，
以及返回的文本。

# 核心接口

  - [Generator]：Generate(ctx, GenerateRequest) 返回文本或错误。
  - [GeneratorFunc]：函数适配器。
  - [EchoGenerator]：确定性的回显实现，用于 mock 模式与测试。

真实的 HTTP 实现位于子包 openaicompat，重试策略位于子包 retry。
*/
package llm
