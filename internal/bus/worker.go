package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/iabetor/pivoice/internal/logger"
	"github.com/iabetor/pivoice/internal/tts"
)

// Request 是合成任务消息。
type Request struct {
	Text       string `json:"text"`
	VoiceID    string `json:"voice_id,omitempty"`
	Language   string `json:"language,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
}

// Response 是合成任务的回复，成功时 OutputPath 非空。
type Response struct {
	OutputPath string `json:"output_path,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Synthesizer 是 Worker 需要的合成能力。
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (string, error)
}

// Worker 从 NATS 队列组接收合成任务。
// 同一订阅的消息按到达顺序逐条处理。
type Worker struct {
	nc      *nats.Conn
	synth   Synthesizer
	subject string
	queue   string
	timeout time.Duration

	sub *nats.Subscription
	log *zap.SugaredLogger
}

// NewWorker 创建 Worker，Start 之前不会订阅。
func NewWorker(nc *nats.Conn, synth Synthesizer, subject, queue string) *Worker {
	return &Worker{
		nc:      nc,
		synth:   synth,
		subject: subject,
		queue:   queue,
		timeout: 2 * time.Minute,
		log:     logger.Named("bus"),
	}
}

// Start 订阅任务主题。ctx 取消后进行中的合成会被中断。
func (w *Worker) Start(ctx context.Context) error {
	sub, err := w.nc.QueueSubscribe(w.subject, w.queue, func(m *nats.Msg) {
		w.handle(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("订阅 %s 失败: %w", w.subject, err)
	}
	w.sub = sub
	w.log.Infof("[bus] 合成 worker 已启动: subject=%s queue=%s", w.subject, w.queue)
	return nil
}

// Stop 取消订阅并等待已收到的消息处理完。
func (w *Worker) Stop() error {
	if w.sub == nil {
		return nil
	}
	err := w.sub.Drain()
	w.sub = nil
	return err
}

func (w *Worker) handle(ctx context.Context, m *nats.Msg) {
	resp := w.process(ctx, m.Data)
	if resp.Error != "" {
		w.log.Warnf("[bus] 合成任务失败: %s", resp.Error)
	}
	if m.Reply == "" {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		w.log.Errorf("[bus] 编码回复失败: %v", err)
		return
	}
	if err := m.Respond(data); err != nil {
		w.log.Errorf("[bus] 发送回复失败: %v", err)
	}
}

func (w *Worker) process(ctx context.Context, data []byte) Response {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Response{Error: "无效的任务消息: " + err.Error()}
	}
	text := tts.PreprocessText(req.Text, req.Language)
	if text == "" {
		return Response{Error: tts.ErrEmptyText.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	path, err := w.synth.Synthesize(ctx, tts.Request{
		Text:       text,
		VoiceID:    req.VoiceID,
		Language:   req.Language,
		SampleRate: req.SampleRate,
	})
	if err != nil {
		return Response{Error: err.Error()}
	}
	return Response{OutputPath: path}
}

// Submit 发送合成任务并等待回复。
func Submit(ctx context.Context, nc *nats.Conn, subject string, req Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return "", fmt.Errorf("发送合成任务失败: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		return "", fmt.Errorf("解析合成回复失败: %w", err)
	}
	if resp.Error != "" {
		return "", errors.New(resp.Error)
	}
	return resp.OutputPath, nil
}
