// Package bootstrap 将 config.Config 装配为可运行的组件集合：
// 日志、能力注册表、生成器、归档、知识加载、指标、遥测与运行历史，
// 并基于这些组件编译 crew 定义。
package bootstrap
