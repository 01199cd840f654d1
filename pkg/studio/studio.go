// Package studio 负责创建和销毁所有共享对象
//
// 注册表、选中状态、播放会话、历史记录和各页面控制器都在 New 里按依赖顺序构造，
// 由 Close 按相反顺序释放；其他包不持有全局单例。
package studio

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/z-wentao/voicestudio/pkg/config"
	"github.com/z-wentao/voicestudio/pkg/events"
	"github.com/z-wentao/voicestudio/pkg/history"
	"github.com/z-wentao/voicestudio/pkg/inference"
	"github.com/z-wentao/voicestudio/pkg/media"
	"github.com/z-wentao/voicestudio/pkg/metrics"
	"github.com/z-wentao/voicestudio/pkg/models"
	"github.com/z-wentao/voicestudio/pkg/player"
	"github.com/z-wentao/voicestudio/pkg/prompts"
	"github.com/z-wentao/voicestudio/pkg/registry"
	"github.com/z-wentao/voicestudio/pkg/screens"
	"github.com/z-wentao/voicestudio/pkg/selection"
	"github.com/z-wentao/voicestudio/pkg/storage"
	"github.com/z-wentao/voicestudio/pkg/task"
)

// DigitalHumanPermissions 数字人页面需要授予的能力
var DigitalHumanPermissions = []string{"camera", "microphone", "display-capture", "autoplay", "clipboard-write"}

// DigitalHuman 嵌入的数字人页面
type DigitalHuman struct {
	URL             string   `json:"url"`
	Allow           []string `json:"allow"`
	AllowFullscreen bool     `json:"allow_fullscreen"`
}

// Deps 可替换的外部依赖，零值字段按配置创建
type Deps struct {
	Registry  *prometheus.Registry
	Publisher events.Publisher
	Inference inference.Service
	Live      inference.LiveDiarizer
	Loader    player.MediaLoader
}

// Studio 工作台：持有全部共享状态
type Studio struct {
	Config   *config.Config
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Bus      *events.Bus
	Media    *media.Store

	Voices    *registry.VoiceRegistry
	Speakers  *registry.SpeakerRegistry
	Selection *selection.Selection
	Player    *player.Player
	Prompts   *prompts.Catalog

	ASR         *screens.ASR
	TTS         *screens.TTS
	Cloning     *screens.VoiceCloning
	Diarization *screens.Diarization
	Library     *screens.VoiceLibrary

	janitor   *media.Janitor
	closers   []func() error
	closeOnce sync.Once
}

// New 按配置创建工作台，失败时已创建的资源会被释放
func New(cfg *config.Config, deps Deps) (_ *Studio, err error) {
	s := &Studio{Config: cfg, Registry: deps.Registry}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()

	if s.Registry == nil {
		s.Registry = prometheus.NewRegistry()
	}
	s.Metrics = metrics.NewMetrics(s.Registry)

	publisher := deps.Publisher
	if publisher == nil && cfg.Events.Type == "rabbitmq" {
		rp, err := events.NewRabbitMQPublisher(cfg.Events.RabbitMQ.URL, cfg.Events.RabbitMQ.Exchange)
		if err != nil {
			return nil, fmt.Errorf("创建事件发布者失败: %w", err)
		}
		publisher = rp
	}
	s.Bus = events.NewBus(publisher, cfg.Events.BufferSize)
	s.onClose(s.Bus.Close)

	if s.Media, err = media.NewStore(cfg.Server.MediaDir, cfg.Server.MediaBaseURL); err != nil {
		return nil, err
	}
	if cfg.Server.MediaMaxAge > 0 {
		if s.janitor, err = media.NewJanitor(s.Media, cfg.Server.MediaSweepSpec, cfg.Server.MediaMaxAge); err != nil {
			return nil, err
		}
		s.janitor.Start()
	}

	rdb, db, err := s.connect(cfg)
	if err != nil {
		return nil, err
	}

	if err := s.buildRegistries(cfg, rdb, db); err != nil {
		return nil, err
	}

	loader := deps.Loader
	if loader == nil {
		httpLoader := player.NewHTTPLoader(cfg.Player.AssumedBitrate, cfg.Player.DefaultDuration).
			WithLocalDir(cfg.Server.MediaBaseURL, cfg.Server.MediaDir)
		if loader, err = player.NewCachedLoader(httpLoader, cfg.Player.ProbeCacheSize, s.Metrics); err != nil {
			return nil, err
		}
	}
	s.Player = player.New(loader,
		player.WithEmitter(s.Bus),
		player.WithMetrics(s.Metrics),
		player.WithLoadTimeout(cfg.Player.LoadTimeout),
	)
	s.onClose(func() error { s.Player.Close(); return nil })

	if s.Selection, err = selection.New(s.Voices, s.Player, s.Bus, cfg.Studio.DefaultVoiceID); err != nil {
		return nil, fmt.Errorf("初始化选中状态失败: %w", err)
	}

	if s.Prompts, err = prompts.NewCatalog(prompts.DefaultPrompts()); err != nil {
		return nil, err
	}
	s.onClose(s.Prompts.Close)

	svc, live := s.buildInference(cfg, deps)
	if err := s.buildScreens(cfg, rdb, svc, live); err != nil {
		return nil, err
	}

	logrus.Infof("✓ 工作台初始化完成 (推理: %s, 存储: %s, 历史: %s, 事件: %s)",
		cfg.Inference.Provider, cfg.Storage.Type, cfg.History.Backend, cfg.Events.Type)
	return s, nil
}

// connect 按需连接 Redis 和 PostgreSQL
func (s *Studio) connect(cfg *config.Config) (*redis.Client, *sql.DB, error) {
	var (
		rdb *redis.Client
		db  *sql.DB
		err error
	)
	needRedis := cfg.Storage.Type == "redis" || cfg.Storage.Type == "hybrid" || cfg.History.Backend == "redis"
	if needRedis {
		rdb, err = storage.NewRedisClient(cfg.Storage.Redis.Addr, cfg.Storage.Redis.Password, cfg.Storage.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		s.onClose(rdb.Close)
		logrus.Info("✓ Redis 连接成功")
	}
	if cfg.Storage.Type == "postgres" || cfg.Storage.Type == "hybrid" {
		db, err = storage.OpenPostgres(cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		s.onClose(db.Close)
		logrus.Info("✓ PostgreSQL 连接成功")
	}
	return rdb, db, nil
}

func buildStore[T storage.Entity[T]](cfg config.StorageConfig, kind string, rdb *redis.Client, db *sql.DB) storage.Store[T] {
	switch cfg.Type {
	case "redis":
		return storage.NewRedisStore[T](rdb, kind, cfg.Redis.TTL)
	case "postgres":
		return storage.NewPostgresStore[T](db, kind)
	case "hybrid":
		return storage.NewHybridStore[T](storage.NewRedisStore[T](rdb, kind, cfg.Redis.TTL), storage.NewPostgresStore[T](db, kind))
	}
	return storage.NewMemoryStore[T]()
}

func (s *Studio) buildRegistries(cfg *config.Config, rdb *redis.Client, db *sql.DB) error {
	voiceStore := buildStore[models.Voice](cfg.Storage, "voice", rdb, db)
	s.onClose(voiceStore.Close)
	speakerStore := buildStore[models.SpeakerIdentity](cfg.Storage, "speaker", rdb, db)
	s.onClose(speakerStore.Close)

	s.Voices = registry.NewVoiceRegistry(voiceStore, s.Bus, s.Metrics)
	s.Speakers = registry.NewSpeakerRegistry(speakerStore, s.Bus, s.Metrics)

	if err := s.Voices.Seed(PresetVoices(cfg.Inference.DemoAudioURL)); err != nil {
		return fmt.Errorf("写入预置声音失败: %w", err)
	}
	return nil
}

func (s *Studio) buildInference(cfg *config.Config, deps Deps) (inference.Service, inference.LiveDiarizer) {
	mock := inference.NewMock(inference.MockConfig{
		TranscribeDelay:    cfg.Inference.TranscribeDelay,
		SynthesizeDelay:    cfg.Inference.SynthesizeDelay,
		DiarizeDelay:       cfg.Inference.DiarizeDelay,
		CloneDelay:         cfg.Inference.CloneDelay,
		LiveInterval:       cfg.Inference.LiveInterval,
		MinCloneSampleRate: cfg.Inference.MinCloneSampleRate,
		DemoAudioURL:       cfg.Inference.DemoAudioURL,
		DemoAudioDuration:  cfg.Inference.DemoAudioDuration.Seconds(),
	})

	var svc inference.Service = mock
	switch {
	case deps.Inference != nil:
		svc = deps.Inference
	case cfg.Inference.Provider == "openai":
		// 克隆没有对应的公开接口，仍然走模拟训练
		svc = inference.NewOpenAIService(cfg.Inference.OpenAIAPIKey, cfg.Inference.OpenAIBaseURL, s.Media, mock)
	}

	var live inference.LiveDiarizer = mock
	if deps.Live != nil {
		live = deps.Live
	}
	return inference.NewCachedService(svc, cfg.Inference.SynthesisCacheTTL, s.Metrics), live
}

func (s *Studio) buildLog(cfg *config.Config, rdb *redis.Client, name string, capacity int) (history.Log, error) {
	if cfg.History.Backend == "redis" {
		return history.NewRedisLog(rdb, name, capacity)
	}
	return history.NewMemoryLog(capacity)
}

func (s *Studio) newRunner(scope string, extra ...task.Option) *task.Runner {
	opts := append([]task.Option{
		task.WithTimeout(s.Config.Task.Timeout),
		task.WithEmitter(s.Bus),
		task.WithMetrics(s.Metrics),
	}, extra...)
	return task.NewRunner(scope, opts...)
}

func (s *Studio) buildScreens(cfg *config.Config, rdb *redis.Client, svc inference.Service, live inference.LiveDiarizer) error {
	asrLog, err := s.buildLog(cfg, rdb, "asr", cfg.History.TranscriptionCap)
	if err != nil {
		return err
	}
	ttsLog, err := s.buildLog(cfg, rdb, "tts", cfg.History.TTSCap)
	if err != nil {
		return err
	}
	diarLog, err := s.buildLog(cfg, rdb, "diarization", cfg.History.DiarizationCap)
	if err != nil {
		return err
	}

	// 录音任务本身会持续到停止或自动停止，超时要覆盖最长录音时间
	asrRunner := s.newRunner("asr", task.WithTimeout(cfg.Task.Timeout+screens.MaxRecording))
	s.ASR = screens.NewASR(asrRunner, svc, asrLog, s.Bus)
	s.onClose(func() error { s.ASR.Close(); return nil })

	s.TTS = screens.NewTTS(s.newRunner("tts"), svc, s.Selection, s.Player, ttsLog, s.Bus)
	s.onClose(func() error { s.TTS.Close(); return nil })

	s.Cloning = screens.NewVoiceCloning(s.newRunner("clone"), svc, s.Voices, s.Speakers, cfg.Inference.DemoAudioURL)
	s.onClose(func() error { s.Cloning.Close(); return nil })

	s.Diarization = screens.NewDiarization(s.newRunner("diarization"), svc, live, s.Speakers, diarLog, s.Bus)
	s.onClose(func() error { s.Diarization.Close(); return nil })

	s.Library = screens.NewVoiceLibrary(s.Voices, s.Selection, s.Player, s)
	return nil
}

// DeleteVoice 删除声音并级联：选中状态回落到默认声音，正在播放的相关条目被关闭
func (s *Studio) DeleteVoice(id string) (models.Voice, error) {
	removed, err := s.Voices.Remove(id)
	if err != nil {
		return models.Voice{}, err
	}

	if _, err := s.Selection.Reconcile(removed.ID); err != nil {
		logrus.Warnf("⚠️ 修正选中声音失败: %v", err)
	}
	s.Player.CloseIfVoice(removed.ID)
	return removed, nil
}

// DigitalHuman 数字人页面的嵌入信息
func (s *Studio) DigitalHuman() DigitalHuman {
	return DigitalHuman{
		URL:             s.Config.Studio.DigitalHumanURL,
		Allow:           append([]string(nil), DigitalHumanPermissions...),
		AllowFullscreen: true,
	}
}

func (s *Studio) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close 按创建的相反顺序释放资源
func (s *Studio) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.janitor != nil {
			s.janitor.Stop()
		}
		for i := len(s.closers) - 1; i >= 0; i-- {
			if err := s.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
		logrus.Info("✓ 工作台已关闭")
	})
	return errors.Join(errs...)
}
