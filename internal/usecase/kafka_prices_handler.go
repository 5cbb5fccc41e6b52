package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"BrentShift/internal/domain/models"
	domrepo "BrentShift/internal/domain/repository"
	pkgkafka "BrentShift/pkg/kafka"
	"BrentShift/pkg/util"
)

// KafkaPricesHandler appends settlements read from Kafka to the price store.
type KafkaPricesHandler struct {
	topic   string
	store   domrepo.PriceStore
	metrics domrepo.Metrics
}

func NewKafkaPricesHandler(topic string, store domrepo.PriceStore, metrics domrepo.Metrics) *KafkaPricesHandler {
	return &KafkaPricesHandler{topic: topic, store: store, metrics: metrics}
}

func (h *KafkaPricesHandler) Topic() string { return h.topic }

// Handle accepts {date, price} or a JSON array of them.
func (h *KafkaPricesHandler) Handle(ctx context.Context, b []byte) error {
	type wire struct {
		Date  string  `json:"date"`
		Price float64 `json:"price"`
	}
	var batch []wire
	if len(b) > 0 && b[0] == '[' {
		if err := json.Unmarshal(b, &batch); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode prices: %w", err)
		}
	} else {
		var one wire
		if err := json.Unmarshal(b, &one); err != nil {
			h.metrics.RecordError("consumer_unmarshal")
			return fmt.Errorf("decode price: %w", err)
		}
		batch = []wire{one}
	}

	points := make([]models.PricePoint, 0, len(batch))
	for _, w := range batch {
		day, ok := util.ParseDate(w.Date)
		if !ok || w.Price < 0 || math.IsNaN(w.Price) || math.IsInf(w.Price, 0) {
			h.metrics.RecordError("consumer_invalid")
			return fmt.Errorf("invalid price %+v", w)
		}
		points = append(points, models.PricePoint{Date: day, Price: w.Price})
	}

	added, err := h.store.Append(ctx, points)
	if err != nil {
		h.metrics.RecordError("consumer_store")
		return err
	}
	h.metrics.RecordIngested("kafka", added)
	return nil
}

var _ pkgkafka.MessageHandler = (*KafkaPricesHandler)(nil)
