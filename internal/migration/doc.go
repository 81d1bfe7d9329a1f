// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 migration 管理运行历史数据库的 Schema 迁移，支持 PostgreSQL、
MySQL 与 SQLite 三种数据库，基于 golang-migrate 实现。

# 概述

本包通过 embed.FS 内嵌各数据库方言的 SQL 迁移文件（crew_runs 与
crew_task_reports 两张表），结合 golang-migrate 引擎实现版本化的
Schema 变更管理。支持正向迁移、回滚、跳转到指定版本以及强制设置版本号,
并能报告两张历史表是否存在、已记录多少次运行。

# 核心接口与类型

  - Migrator：迁移器接口，定义 Up/Down/DownAll/Goto/Force/
    Version/Status/Info/Close 操作。
  - MigrationInfo：版本计数、历史表状态与 Ready 判断。
  - DefaultMigrator：Migrator 的默认实现，自持数据库连接。
  - Config：迁移配置，包含数据库类型、DSN 与迁移表名。
  - DatabaseType：数据库类型枚举（postgres/mysql/sqlite）。
  - CLI：命令行交互层，供 crewflow migrate 子命令使用。

# 主要能力

  - 多数据库支持：每种 DatabaseType 对应一个方言（驱动、迁移目录与
    表检查语句），sqlite 使用与 gorm 相同的纯 Go 驱动。
  - 工厂函数：NewMigratorFromConfig / NewMigratorFromDatabaseConfig
    直接从 config.DatabaseConfig 创建迁移器。
*/
package migration
