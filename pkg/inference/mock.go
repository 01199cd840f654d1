package inference

import (
	"context"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/models"
)

// DemoAudioURL 模拟合成返回的示例音频
const DemoAudioURL = "https://interactive-examples.mdn.mozilla.net/media/cc0-audio/t-rex-roar.mp3"

// CloneFailureMessage 克隆样本质量不足时的提示
const CloneFailureMessage = "声音采样率过低，克隆失败，请尝试更高质量的录音。"

// StreamingTranscript 模拟的流式转写文本
const StreamingTranscript = "语音识别正在运行中... 系统正在实时捕获音频并进行流式转录。您可以直接说话，文字会即刻出现在下方的文本区域内。"

// fileTranscript 上传文件的模拟转写结果
const fileTranscript = "大家好，这是一段上传的测试音频。系统已经完成识别，转写结果仅用于演示。"

type scriptLine struct {
	speaker string
	text    string
}

// liveScript 实时分离的模拟对话，id 里带 known 的是已确认身份
var liveScript = []scriptLine{
	{"spk_known_1", "大家好，欢迎参加今天的语音技术研讨会。我们将探讨最新的声纹识别进展。"},
	{"spk_known_2", "李经理好，我这边已经准备好演示 Demo 了，大家可以看到实时转录的效果。"},
	{"spk_new_3", "抱歉我来晚了，我是研发部的张三。刚才提到的实时延迟是多少？"},
	{"spk_known_1", "没关系，张工。我们刚开始。目前流式处理可以做到百毫秒级。"},
	{"spk_new_3", "明白了，那对于复杂背景噪音的处理能力如何呢？"},
	{"spk_known_2", "我们采用了最新的降噪算法，抗噪表现非常优异。"},
	{"spk_known_1", "接下来我们可以测试一下在多人交谈情况下的分离准确度。"},
}

var liveNames = map[string]string{
	"spk_known_1": "李经理",
	"spk_known_2": "王助理",
}

// analysisScript 上传文件分析的模拟结果
var analysisScript = []Utterance{
	{Speaker: "Speaker A", Text: "今天我们主要对齐一下新版本的上线计划。", Start: 0, End: 3.2},
	{Speaker: "Speaker B", Text: "好的，测试那边已经全部通过了，可以按时发布。", Start: 3.4, End: 7.1},
	{Speaker: "Speaker A", Text: "那发布后的监控由谁来负责？", Start: 7.5, End: 9.8},
	{Speaker: "Speaker B", Text: "我来负责，有问题会第一时间同步到群里。", Start: 10.0, End: 13.6},
}

// MockConfig 模拟服务的延迟和参数
type MockConfig struct {
	TranscribeDelay    time.Duration
	SynthesizeDelay    time.Duration
	DiarizeDelay       time.Duration
	CloneDelay         time.Duration
	LiveInterval       time.Duration
	MinCloneSampleRate int
	DemoAudioURL       string
	DemoAudioDuration  float64
}

// DefaultMockConfig 与演示界面一致的延迟
func DefaultMockConfig() MockConfig {
	return MockConfig{
		TranscribeDelay:    1500 * time.Millisecond,
		SynthesizeDelay:    1500 * time.Millisecond,
		DiarizeDelay:       2 * time.Second,
		CloneDelay:         2500 * time.Millisecond,
		LiveInterval:       3 * time.Second,
		MinCloneSampleRate: 16000,
		DemoAudioURL:       DemoAudioURL,
	}
}

// Mock 脚本化的推理服务，不访问网络
type Mock struct {
	cfg   MockConfig
	float func() float64
}

// NewMock 创建模拟服务
func NewMock(cfg MockConfig) *Mock {
	if cfg.DemoAudioURL == "" {
		cfg.DemoAudioURL = DemoAudioURL
	}
	return &Mock{cfg: cfg, float: rand.Float64}
}

// sleep 可取消的延迟，取消时定时器立即释放
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transcribe 空音频视为推理失败
func (m *Mock) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if err := sleep(ctx, m.cfg.TranscribeDelay); err != nil {
		return "", err
	}
	if len(audio) == 0 {
		return "", models.Failf("文件转录失败：音频内容为空")
	}
	return fileTranscript, nil
}

func (m *Mock) Synthesize(ctx context.Context, text string, params VoiceParams) (models.AudioRef, error) {
	if strings.TrimSpace(text) == "" {
		return models.AudioRef{}, models.Failf("合成文本为空")
	}
	if err := sleep(ctx, m.cfg.SynthesizeDelay); err != nil {
		return models.AudioRef{}, err
	}
	return models.AudioRef{URL: m.cfg.DemoAudioURL, Duration: m.cfg.DemoAudioDuration}, nil
}

func (m *Mock) Diarize(ctx context.Context, audio []byte, mimeType string) ([]Utterance, error) {
	if err := sleep(ctx, m.cfg.DiarizeDelay); err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, models.Failf("分析失败：音频内容为空")
	}
	out := make([]Utterance, len(analysisScript))
	copy(out, analysisScript)
	return out, nil
}

// Clone 采样率低于阈值时确定性失败，其余情况成功
func (m *Mock) Clone(ctx context.Context, sample CloneSample) (models.AudioRef, error) {
	if err := sleep(ctx, m.cfg.CloneDelay); err != nil {
		return models.AudioRef{}, err
	}
	if sample.SampleRate > 0 && sample.SampleRate < m.cfg.MinCloneSampleRate {
		return models.AudioRef{}, models.Failf(CloneFailureMessage)
	}
	return models.AudioRef{URL: m.cfg.DemoAudioURL, Duration: m.cfg.DemoAudioDuration}, nil
}

// DiarizeLive 每隔 LiveInterval 吐出一句脚本对话，脚本结束后返回 nil
func (m *Mock) DiarizeLive(ctx context.Context, emit func(Utterance)) error {
	interval := m.cfg.LiveInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for idx, line := range liveScript {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		known := strings.Contains(line.speaker, "known")
		name := liveNames[line.speaker]
		if name == "" {
			name = "未知访客"
		}
		emit(Utterance{
			Speaker:     line.speaker,
			SpeakerName: name,
			Known:       known,
			Text:        line.text,
			Start:       float64(idx * 4),
			End:         float64((idx + 1) * 4),
			Confidence:  0.98 + m.float()*0.02,
		})
	}

	logrus.Debug("实时分离脚本已播放完毕")
	return nil
}
