// Package config 提供 CrewFlow 的配置管理功能。
//
// 包含两类配置:
//   - 应用配置 Config: 默认值 → YAML 文件 → 环境变量, 最后统一校验;
//   - Crew 定义 CrewDefinition: 以类型化结构描述 agent、task、manager
//     与知识源, 由 crew.FromDefinition 编译为可执行的 Crew。
package config
