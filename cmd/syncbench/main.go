package main

import (
	"context"
	"fmt"
	"net/http/httptest"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/d60-Lab/livesync/config"
	"github.com/d60-Lab/livesync/internal/api"
	"github.com/d60-Lab/livesync/internal/livesync"
	"github.com/d60-Lab/livesync/internal/model"
	"github.com/d60-Lab/livesync/internal/realtime"
	"github.com/d60-Lab/livesync/internal/repository"
	"github.com/d60-Lab/livesync/internal/service"
	"github.com/d60-Lab/livesync/pkg/database"
)

// latencyNotifier 从消息内容里取发送时间，计算推送到达延迟
type latencyNotifier struct {
	ch chan time.Duration
}

func (n *latencyNotifier) NewMessage(msg model.Message) {
	ns, err := strconv.ParseInt(strings.TrimPrefix(msg.Content, "bench "), 10, 64)
	if err != nil {
		return
	}
	select {
	case n.ch <- time.Since(time.Unix(0, ns)):
	default:
	}
}

func (n *latencyNotifier) UnreadSummary([]model.Conversation) {}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	cfg.Server.Seed = true
	db, err := database.InitDB(cfg)
	if err != nil {
		panic(err)
	}

	PAIRS := envInt("PAIRS", 8)
	MESSAGES := envInt("MESSAGES", 50)
	ctx := context.Background()

	if err := service.Seed(ctx, db); err != nil {
		panic(err)
	}
	hash, err := service.HashPassword(service.SeedPassword)
	if err != nil {
		panic(err)
	}
	users := repository.NewUserRepository(db)
	for i := 0; i < PAIRS*2; i++ {
		u := &model.User{ID: int64(10000 + i), Name: fmt.Sprintf("bench-%d", i), Role: model.RoleStudent, PasswordHash: hash}
		if err := users.Upsert(ctx, u); err != nil {
			panic(err)
		}
	}

	srv := api.NewServer(cfg, db)
	srv.Start()
	ts := httptest.NewServer(srv.Engine)
	defer ts.Close()
	defer func() { _ = srv.Stop(context.Background()) }()

	cfg.Client.APIBase = ts.URL
	cfg.Client.RateLimit = 0
	cfg.Realtime.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	notifier := &latencyNotifier{ch: make(chan time.Duration, PAIRS*MESSAGES)}
	connect := func(uid int64, withNotifier bool) *livesync.Client {
		deps := livesync.Deps{}
		if withNotifier {
			deps.Notifier = notifier
		}
		c := livesync.New(cfg, nil, deps)
		c.Start()
		if err := c.Login(ctx, uid, service.SeedPassword); err != nil {
			panic(err)
		}
		return c
	}

	senders := make([]*livesync.Client, PAIRS)
	convs := make([]int64, PAIRS)
	for i := 0; i < PAIRS; i++ {
		senders[i] = connect(int64(10000+2*i), false)
		recv := connect(int64(10000+2*i+1), true)
		defer func(c *livesync.Client) { _ = c.Stop(context.Background()) }(recv)
		defer func(c *livesync.Client) { _ = c.Stop(context.Background()) }(senders[i])
	}

	// 等待所有连接加入自己的房间
	deadline := time.Now().Add(10 * time.Second)
	for i := 0; i < PAIRS; i++ {
		for srv.Hub.RoomSize(service.UserRoom(int64(10000+2*i+1))) == 0 || senders[i].Conn.State() != realtime.Connected {
			if time.Now().After(deadline) {
				panic("clients did not connect")
			}
			time.Sleep(10 * time.Millisecond)
		}
		convs[i] = senders[i].Messaging.GetOrCreateConversation(ctx, int64(10000+2*i+1))
	}

	st := time.Now()
	var wg sync.WaitGroup
	wg.Add(PAIRS)
	for i := 0; i < PAIRS; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < MESSAGES; j++ {
				_ = senders[i].Messaging.SendMessage(ctx, convs[i], fmt.Sprintf("bench %d", time.Now().UnixNano()))
			}
		}(i)
	}
	wg.Wait()
	sendTook := time.Since(st)

	want := PAIRS * MESSAGES
	lat := make([]time.Duration, 0, want)
	timeout := time.After(10 * time.Second)
collect:
	for len(lat) < want {
		select {
		case d := <-notifier.ch:
			lat = append(lat, d)
		case <-timeout:
			break collect
		}
	}

	var fan []time.Duration
drain:
	for {
		select {
		case d := <-srv.Fanout.Metrics():
			fan = append(fan, d)
		default:
			break drain
		}
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(float64(len(xs)) * p)
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}
	avg := func(vs []time.Duration) time.Duration {
		if len(vs) == 0 {
			return 0
		}
		var sum time.Duration
		for _, d := range vs {
			sum += d
		}
		return sum / time.Duration(len(vs))
	}

	fmt.Printf("PAIRS=%d MESSAGES=%d sent=%d received=%d send_took=%v\n", PAIRS, MESSAGES, want, len(lat), sendTook)
	fmt.Printf("Push latency (send -> synchronizer): avg=%v p95=%v p99=%v\n", avg(lat), pct(lat, 0.95), pct(lat, 0.99))
	fmt.Printf("Fanout latency (outbox -> hub): n=%d avg=%v p95=%v p99=%v\n", len(fan), avg(fan), pct(fan, 0.95), pct(fan, 0.99))
}
