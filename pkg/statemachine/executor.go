package statemachine

import "github.com/alitto/pond/v2"

// Executor 执行异步调用
type Executor interface {
	Go(task func()) error
}

// GoExecutor 每个调用一个协程
type GoExecutor struct{}

func (GoExecutor) Go(task func()) error {
	go task()
	return nil
}

// PoolExecutor 基于 pond 协程池，限制所有实例的调用并发数
type PoolExecutor struct {
	pool pond.Pool
}

// NewPoolExecutor 创建协程池执行器
func NewPoolExecutor(maxConcurrency int) *PoolExecutor {
	return &PoolExecutor{pool: pond.NewPool(maxConcurrency)}
}

// Go 提交任务，协程池停止后返回错误
func (p *PoolExecutor) Go(task func()) error {
	return p.pool.Go(task)
}

// Running 返回正在执行的任务数
func (p *PoolExecutor) Running() int64 {
	return p.pool.RunningWorkers()
}

// Stop 停止协程池并等待已提交任务完成
func (p *PoolExecutor) Stop() {
	p.pool.StopAndWait()
}
