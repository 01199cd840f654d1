package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// RabbitMQPublisher 把事件发到 fanout exchange
// 任意数量的外部消费者各自绑定队列即可收到全部事件
type RabbitMQPublisher struct {
	url      string
	exchange string
	closed   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc

	conn    *amqp.Connection
	channel *amqp.Channel
	// RabbitMQ Channel 不是并发安全的
	publishMutex sync.Mutex
}

// NewRabbitMQPublisher 建立连接并声明 exchange
func NewRabbitMQPublisher(url, exchange string) (*RabbitMQPublisher, error) {
	ctx, cancel := context.WithCancel(context.Background())

	rp := &RabbitMQPublisher{
		url:      url,
		exchange: exchange,
		closed:   make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := rp.setup(); err != nil {
		cancel()
		return nil, fmt.Errorf("初始化发布者失败: %w", err)
	}

	logrus.Infof("✓ RabbitMQ 事件发布者初始化成功 (exchange: %s)", exchange)
	return rp, nil
}

func (rp *RabbitMQPublisher) setup() error {
	conn, err := amqp.Dial(rp.url)
	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("创建 RabbitMQ Channel 失败: %w", err)
	}

	// 声明 exchange（幂等操作）
	err = ch.ExchangeDeclare(
		rp.exchange, // name
		"fanout",    // kind
		true,        // durable
		false,       // autoDelete
		false,       // internal
		false,       // noWait
		nil,         // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("声明 exchange 失败: %w", err)
	}

	rp.conn = conn
	rp.channel = ch
	return nil
}

// Publish 发布事件，routing key 为事件类型
func (rp *RabbitMQPublisher) Publish(ctx context.Context, event Event) error {
	select {
	case <-rp.closed:
		return fmt.Errorf("发布者已关闭")
	default:
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}

	rp.publishMutex.Lock()
	defer rp.publishMutex.Unlock()

	// 创建上下文（5 秒超时）
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = rp.channel.PublishWithContext(
		ctx,
		rp.exchange, // exchange
		event.Type,  // routing key（fanout 下仅作标记）
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   event.ID,
			Type:        event.Type,
			Body:        body,
			Timestamp:   event.Time,
		},
	)
	if err != nil {
		return fmt.Errorf("发布消息失败: %w", err)
	}
	return nil
}

// Close 关闭连接
func (rp *RabbitMQPublisher) Close() error {
	select {
	case <-rp.closed:
		return nil
	default:
		close(rp.closed)
		rp.cancel()

		rp.publishMutex.Lock()
		defer rp.publishMutex.Unlock()
		if rp.channel != nil {
			rp.channel.Close()
		}
		if rp.conn != nil {
			rp.conn.Close()
		}

		logrus.Info("✓ RabbitMQ 事件发布者已关闭")
		return nil
	}
}
