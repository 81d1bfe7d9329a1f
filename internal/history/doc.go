// Package history 将每次 crew 运行及其任务报告持久化到关系数据库。
//
// Store 实现 crew.Observer，运行开始时写入 RunRecord，
// 每个任务报告写入一条 TaskRecord，运行结束时回填状态与最终输出。
// 写入失败只记录日志，不影响运行本身。
package history
