package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"flowershop/internal/domain"
)

// Publisher отправляет событие о созданном заказе после коммита транзакции
type Publisher interface {
	PublishOrderCreated(ctx context.Context, o *domain.Order) error
	Close() error
}

// OrderCreated payload of the order-created topic
type OrderCreated struct {
	OrderID     int64              `json:"order_id"`
	OrderNo     string             `json:"order_no"`
	TotalAmount decimal.Decimal    `json:"total_amount"`
	Items       []OrderCreatedItem `json:"items"`
	CreatedAt   time.Time          `json:"created_at"`
}

type OrderCreatedItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

func NewOrderCreated(o *domain.Order) OrderCreated {
	ev := OrderCreated{
		OrderID:     o.ID,
		OrderNo:     o.OrderNo,
		TotalAmount: o.TotalAmount,
		Items:       make([]OrderCreatedItem, 0, len(o.Items)),
		CreatedAt:   o.CreatedAt,
	}
	for _, it := range o.Items {
		ev.Items = append(ev.Items, OrderCreatedItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return ev
}

// orderCreatedMessage builds the kafka message keyed by order number, carrying the trace context.
func orderCreatedMessage(ctx context.Context, o *domain.Order) (kafka.Message, error) {
	value, err := json.Marshal(NewOrderCreated(o))
	if err != nil {
		return kafka.Message{}, err
	}
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	headers := []kafka.Header{{Key: "content-type", Value: []byte("application/json")}}
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(o.OrderNo),
		Value:   value,
		Headers: headers,
	}, nil
}

// KafkaPublisher пишет события в Kafka
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(broker, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(broker),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}}
}

func (p *KafkaPublisher) PublishOrderCreated(ctx context.Context, o *domain.Order) error {
	msg, err := orderCreatedMessage(ctx, o)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// NopPublisher используется, когда брокер не настроен
type NopPublisher struct{}

func (NopPublisher) PublishOrderCreated(context.Context, *domain.Order) error { return nil }

func (NopPublisher) Close() error { return nil }
