package core

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"deploy-console/internal/model"
	"deploy-console/pkg/constants"
	pkgErrors "deploy-console/pkg/errors"
)

// WaveStatus 波次部署的运行状态
type WaveStatus struct {
	Running     bool   `json:"running"`
	CurrentWave int    `json:"current_wave,omitempty"`
	Message     string `json:"message,omitempty"`
}

// StartWaveDeployment 按波次升序部署全部实例, 后台执行
//
// 同一时刻至多一次波次部署在运行, 重复发起返回冲突错误。
func (e *Engine) StartWaveDeployment() error {
	e.waveMu.Lock()
	defer e.waveMu.Unlock()
	if e.waveRunning {
		return pkgErrors.New(pkgErrors.CodeConflict, "波次部署正在进行中")
	}
	e.waveRunning = true
	e.currentWave = 0
	e.waveMessage = ""

	go e.runWaves()
	return nil
}

// WaveStatusNow 查询波次部署进度
func (e *Engine) WaveStatusNow() WaveStatus {
	e.waveMu.Lock()
	defer e.waveMu.Unlock()
	return WaveStatus{
		Running:     e.waveRunning,
		CurrentWave: e.currentWave,
		Message:     e.waveMessage,
	}
}

func (e *Engine) setWaveProgress(wave int, message string) {
	e.waveMu.Lock()
	if wave > 0 {
		e.currentWave = wave
	}
	if message != "" {
		e.waveMessage = message
	}
	e.waveMu.Unlock()
}

func (e *Engine) runWaves() {
	defer func() {
		e.waveMu.Lock()
		e.waveRunning = false
		e.waveMu.Unlock()
	}()

	for _, wave := range constants.DeployWaves {
		instances, err := e.store.FindByWave(wave)
		if err != nil {
			e.setWaveProgress(wave, fmt.Sprintf("查询第%d波实例失败: %v", wave, err))
			return
		}
		if len(instances) == 0 {
			continue
		}

		ids := lo.Map(instances, func(inst *model.DeployInstance, _ int) string { return inst.InstanceID })

		e.setWaveProgress(wave, fmt.Sprintf("提交第%d波, 共%d个实例", wave, len(ids)))
		e.logger.Info("提交波次部署", zap.Int("wave", wave), zap.Int("count", len(ids)))

		if _, err := e.Submit(context.Background(), ids, true); err != nil {
			e.setWaveProgress(wave, fmt.Sprintf("第%d波提交失败: %v", wave, err))
			e.logger.Error("波次提交失败", zap.Int("wave", wave), zap.Error(err))
			return
		}

		if !e.waitWaveSettled(wave, ids) {
			return
		}
	}
	e.setWaveProgress(0, "全部波次处理完毕")
}

// waitWaveSettled 等待本波全部实例到达终态
//
// 超时不视为失败, 记录后放行下一波。返回 false 表示引擎停止, 中断后续波次。
func (e *Engine) waitWaveSettled(wave int, ids []string) bool {
	deadline := time.Now().Add(e.opts.WaveTimeout)
	ticker := time.NewTicker(e.opts.WaveWait)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			e.setWaveProgress(wave, "引擎停止, 波次部署中断")
			return false
		case <-ticker.C:
			instances, err := e.store.FindByInstanceIDs(ids)
			if err != nil {
				e.logger.Error("查询波次实例状态失败", zap.Int("wave", wave), zap.Error(err))
				continue
			}
			settled := lo.EveryBy(instances, func(inst *model.DeployInstance) bool {
				return constants.IsTerminalDeployStatus(inst.DeploymentStatus)
			})
			if settled {
				e.setWaveProgress(wave, fmt.Sprintf("第%d波已全部到达终态", wave))
				return true
			}
			if time.Now().After(deadline) {
				e.setWaveProgress(wave, fmt.Sprintf("第%d波等待超时, 继续下一波", wave))
				e.logger.Warn("波次等待超时", zap.Int("wave", wave))
				return true
			}
		}
	}
}
