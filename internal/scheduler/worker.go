package scheduler

import (
	"log"

	"transfer-sniper/internal/database"
	"transfer-sniper/internal/market"
	"transfer-sniper/internal/models"
)

// TradeRecorder persists trades off the sniper loop goroutines so a
// slow database never delays a purchase
type TradeRecorder struct {
	db        *database.GormDB
	queue     chan models.Trade
	stopChan  chan struct{}
	doneChan  chan struct{}
	isRunning bool
}

// NewTradeRecorder creates a recorder with a bounded queue
func NewTradeRecorder(db *database.GormDB) *TradeRecorder {
	return &TradeRecorder{
		db:       db,
		queue:    make(chan models.Trade, 256),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start starts the recorder worker
func (r *TradeRecorder) Start() {
	if r.isRunning {
		log.Println("TradeRecorder: Already running")
		return
	}
	r.isRunning = true
	log.Println("TradeRecorder: Started")
	go r.run()
}

// Stop drains the queue and stops the worker
func (r *TradeRecorder) Stop() {
	if !r.isRunning {
		return
	}
	r.isRunning = false
	close(r.stopChan)
	<-r.doneChan
	log.Println("TradeRecorder: Stopped")
}

func (r *TradeRecorder) run() {
	defer close(r.doneChan)

	for {
		select {
		case trade := <-r.queue:
			r.persist(trade)
		case <-r.stopChan:
			// Drain whatever is still queued before exiting
			for {
				select {
				case trade := <-r.queue:
					r.persist(trade)
				default:
					return
				}
			}
		}
	}
}

func (r *TradeRecorder) persist(trade models.Trade) {
	if err := r.db.RecordTrade(&trade); err != nil {
		log.Printf("TradeRecorder: Failed to save trade for %s: %v", trade.AccountKey, err)
	}
}

// enqueue drops the trade when the queue is full rather than blocking
// the loop
func (r *TradeRecorder) enqueue(trade models.Trade) {
	select {
	case r.queue <- trade:
	default:
		log.Printf("TradeRecorder: Queue full, dropping trade record for %s", trade.AccountKey)
	}
}

// RecordPurchase queues a buy-side trade row
func (r *TradeRecorder) RecordPurchase(accountKey string, card market.Card, price int) {
	r.enqueue(models.Trade{
		AccountKey: accountKey,
		Side:       models.TradeSideBuy,
		TradeID:    card.TradeID,
		PlayerName: card.Name,
		ResourceID: card.ResourceID,
		Rating:     card.Rating,
		Price:      price,
	})
}

// RecordSale queues a sell-side trade row
func (r *TradeRecorder) RecordSale(accountKey string, earned int) {
	r.enqueue(models.Trade{
		AccountKey: accountKey,
		Side:       models.TradeSideSell,
		Price:      earned,
	})
}
