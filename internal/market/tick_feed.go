package market

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"

	"quantgate/internal/logger"
)

// Tick 一次实时成交价更新。
type Tick struct {
	Ticker string
	Price  float64
	At     time.Time
}

// TickHandler 收到 tick 后的回调，由退出策略管理器实现。
type TickHandler func(Tick)

// TickFeed 订阅供应商的 websocket 行情流，把成交价推给退出计划评估。
// 断线后按固定间隔重连，ctx 取消时退出。
type TickFeed struct {
	url       string
	tickers   []string
	handler   TickHandler
	reconnect time.Duration
}

func NewTickFeed(url string, tickers []string, handler TickHandler) *TickFeed {
	return &TickFeed{
		url:       url,
		tickers:   tickers,
		handler:   handler,
		reconnect: 5 * time.Second,
	}
}

// Run 阻塞运行直到 ctx 结束。
func (f *TickFeed) Run(ctx context.Context) {
	for {
		if err := f.runOnce(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("tick feed: connection lost: %v, reconnect in %s", err, f.reconnect)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.reconnect):
		}
	}
}

func (f *TickFeed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := map[string]any{"op": "subscribe", "tickers": f.tickers}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	logger.Infof("tick feed: subscribed to %d tickers", len(f.tickers))

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		doc := gjson.ParseBytes(payload)
		ticker := doc.Get("ticker").String()
		price := doc.Get("price").Float()
		if ticker == "" || price <= 0 {
			continue
		}
		at := time.Now()
		if ts := doc.Get("ts").Int(); ts > 0 {
			at = time.UnixMilli(ts)
		}
		if f.handler != nil {
			f.handler(Tick{Ticker: ticker, Price: price, At: at})
		}
	}
}
