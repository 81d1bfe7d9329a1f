// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接管理，供运行历史等持久化组件使用。

# 概述

Open 根据 config.DatabaseConfig 选择驱动（postgres、mysql、sqlite），
打开 GORM 连接并交给 PoolManager 统一管理连接池参数、健康检查与事务重试。

# 核心类型

  - PoolManager：连接池管理器，持有 GORM DB 实例与底层 sql.DB，
    提供 DB()、Ping()、Stats()、Close() 等生命周期方法。
  - PoolConfig：连接池配置，包含最大空闲连接数、最大打开连接数、
    连接最大生命周期、空闲超时与健康检查间隔。
  - TransactionFunc：事务回调函数类型。

# 主要能力

  - 驱动选择：Dialector 将配置映射为 GORM Dialector，sqlite 使用纯 Go 实现。
  - 健康检查：后台定时 PingContext 探活，Close 后自动退出。
  - 事务管理：WithTransaction 单次执行，WithTransactionRetry
    对死锁、序列化失败、sqlite busy 等错误做指数退避重试。
*/
package database
