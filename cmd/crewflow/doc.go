// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 crewflow 命令行入口。

# 概述

cmd/crewflow 加载 YAML 配置与 crew 定义，装配能力注册表、生成器、
归档、知识、指标、遥测与运行历史，然后执行一次 crew 运行。

# 子命令

  - run       执行 crew 定义，最终输出写到 stdout
  - validate  编译 crew 定义但不运行，输出任务顺序与必需输入
  - history   查询运行历史（需要启用 database）
  - migrate   管理运行历史表结构
  - health    检查运行中进程的运维端点
  - version   输出构建信息

# 退出码

  - 0 运行成功
  - 1 运行失败或被取消
  - 2 用法、配置或 crew 定义错误
*/
package main
