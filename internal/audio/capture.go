package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/iabetor/pivoice/internal/logger"
)

// Capture 使用 malgo (miniaudio) 从默认麦克风采集单声道音频，
// 用于录制声音档案的参考样本。
type Capture struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	frameSize  uint32
	out        chan []float32
	mu         sync.Mutex
	running    bool
}

// NewCapture 创建采集实例。frameSize 为每次回调的采样点数（如 512）。
func NewCapture(sampleRate, frameSize int) (*Capture, error) {
	ctxConfig := malgo.ContextConfig{}
	ctxConfig.ThreadPriority = malgo.ThreadPriorityRealtime

	ctx, err := malgo.InitContext(nil, ctxConfig, nil)
	if err != nil {
		return nil, fmt.Errorf("初始化音频上下文失败: %w", err)
	}

	return &Capture{
		ctx:        ctx,
		sampleRate: uint32(sampleRate),
		frameSize:  uint32(frameSize),
		out:        make(chan []float32, 64),
	}, nil
}

// Start 开始采集。
func (c *Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = 1
	deviceConfig.SampleRate = c.sampleRate
	deviceConfig.PeriodSizeInFrames = c.frameSize
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(outputSamples, inputSamples []byte, frameCount uint32) {
			if len(inputSamples) == 0 {
				return
			}
			samples := BytesToFloat32(inputSamples)
			// 非阻塞发送，消费端跟不上就丢帧
			select {
			case c.out <- samples:
			default:
			}
		},
	}

	device, err := malgo.InitDevice(c.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("初始化采集设备失败: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("启动采集设备失败: %w", err)
	}

	c.device = device
	c.running = true
	logger.Info("[audio] 麦克风采集已启动")
	return nil
}

// Stop 停止采集。
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.device.Stop()
	c.device.Uninit()
	c.running = false
	logger.Info("[audio] 麦克风采集已停止")
}

// Close 释放所有资源。
func (c *Capture) Close() {
	c.Stop()
	if c.ctx != nil {
		_ = c.ctx.Uninit()
		c.ctx.Free()
		c.ctx = nil
	}
}

// Record 录制 d 时长的音频，ctx 取消时提前返回已录到的部分。
func (c *Capture) Record(ctx context.Context, d time.Duration) (*Stream, error) {
	if err := c.Start(); err != nil {
		return nil, err
	}
	defer c.Stop()

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var all []float32
	for {
		select {
		case <-ctx.Done():
			if len(all) == 0 {
				return nil, fmt.Errorf("未采集到音频")
			}
			return NewMono(all, int(c.sampleRate)), nil
		case frame := <-c.out:
			all = append(all, frame...)
		}
	}
}
