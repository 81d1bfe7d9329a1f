// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供运维 HTTP 端点的生命周期管理，crewflow run 运行期间
通过它暴露 Prometheus 指标与健康检查。

# 核心类型

  - Manager：HTTP 服务器管理器，持有 http.Server、net.Listener
    与异步错误通道，提供 Start/Shutdown 等生命周期方法。
  - Config：服务器配置，包含监听地址、读写超时与优雅关闭超时。
  - OpsHandler：组合 /metrics、/health 与 /ready 的 http.Handler。

# 主要能力

  - 非阻塞启动：Start 在后台 goroutine 中运行服务，监听 ":0" 时
    Addr 返回实际端口。
  - 优雅关闭：Shutdown 在配置的超时内完成请求排空与连接释放。
  - 错误传播：Errors() 返回异步错误通道，供调用方监控服务异常。
*/
package server
