package core

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"deploy-console/internal/adapter/joblog"
	"deploy-console/internal/adapter/trigger"
	"deploy-console/internal/model"
)

// InstanceStore 引擎依赖的实例存取能力
type InstanceStore interface {
	FindByID(id int64) (*model.DeployInstance, error)
	FindByInstanceID(instanceID string) (*model.DeployInstance, error)
	FindByInstanceIDs(instanceIDs []string) ([]*model.DeployInstance, error)
	FindByWave(wave int) ([]*model.DeployInstance, error)
	FindAll() ([]*model.DeployInstance, error)
	UpdateRuntime(id int64, mutate func(*model.DeployInstance)) error
	UpdateStatusIf(id int64, fromStatus string, updates map[string]interface{}) (bool, error)
}

// CredentialProvider 引擎依赖的凭据读取能力, 返回解密后的服务账号
type CredentialProvider interface {
	SelectedCredential(credType string) (json.RawMessage, error)
}

// Options 引擎时间参数
type Options struct {
	ScanInterval time.Duration // 全量对账扫描间隔
	PollInterval time.Duration // 单实例轮询间隔
	WaveWait     time.Duration // 波次等待循环间隔
	WaveTimeout  time.Duration // 单波次等待超时
	LogTailLimit int           // 终态日志拉取行数
}

func (o *Options) withDefaults() {
	if o.ScanInterval <= 0 {
		o.ScanInterval = 30 * time.Second
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 10 * time.Second
	}
	if o.WaveWait <= 0 {
		o.WaveWait = 5 * time.Second
	}
	if o.WaveTimeout <= 0 {
		o.WaveTimeout = 30 * time.Minute
	}
	if o.LogTailLimit <= 0 {
		o.LogTailLimit = 200
	}
}

// Engine 部署编排引擎
//
// 负责提交部署、按波次推进、以及对已提交实例的状态轮询。
// pollTasks 以实例主键为索引, 每个在轮询的实例对应一个可取消的后台任务。
type Engine struct {
	store   InstanceStore
	creds   CredentialProvider
	trigger trigger.Client
	logs    joblog.Retriever
	logger  *zap.Logger
	opts    Options

	mu        sync.Mutex
	pollTasks map[int64]*pollTask

	waveMu      sync.Mutex
	waveRunning bool
	currentWave int
	waveMessage string

	running  bool
	stopChan chan struct{}
}

// NewEngine 创建编排引擎
func NewEngine(store InstanceStore, creds CredentialProvider, triggerClient trigger.Client, logs joblog.Retriever, logger *zap.Logger, opts Options) *Engine {
	opts.withDefaults()
	return &Engine{
		store:     store,
		creds:     creds,
		trigger:   triggerClient,
		logs:      logs,
		logger:    logger,
		opts:      opts,
		pollTasks: make(map[int64]*pollTask, 10),
		stopChan:  make(chan struct{}),
	}
}

// Start 启动引擎, 定时对账并拉起轮询任务
func (e *Engine) Start() {
	if e.running {
		e.logger.Warn("编排引擎已在运行中")
		return
	}
	e.running = true
	e.logger.Info("Engine starting...", zap.Duration("scan_interval", e.opts.ScanInterval))

	// 启动时先对账一次, 恢复进程重启前的轮询任务
	e.Reconcile()

	go e.runScanner()
}

// Stop 停止引擎并取消全部轮询任务
func (e *Engine) Stop() {
	e.mu.Lock()
	for id, task := range e.pollTasks {
		task.cancel()
		delete(e.pollTasks, id)
	}
	e.mu.Unlock()

	if !e.running {
		return
	}
	e.logger.Info("正在停止编排引擎...")
	close(e.stopChan)
	e.running = false
	e.logger.Info("编排引擎已停止")
}

func (e *Engine) runScanner() {
	ticker := time.NewTicker(e.opts.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Reconcile()
		case <-e.stopChan:
			return
		}
	}
}
