package sink

import (
	"context"
	"encoding/json"

	"odjitter/internal/jitter"

	"github.com/redis/go-redis/v9"
)

// streamAdder：redis.Client 的 XADD 子集，便于测试替换
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// 文档注释：Redis Stream 输出端
// 背景：把每条出行追加到 Stream，供微观仿真等下游按消费组实时读取。
// 约束：maxLen>0 时使用近似裁剪（MAXLEN ~）；字段为起终点经纬度、run_id 与 JSON 属性。
type RedisStream struct {
	rc     streamAdder
	stream string
	runID  string
	maxLen int64
}

func NewRedisStream(rc *redis.Client, stream, runID string, maxLen int64) *RedisStream {
	return &RedisStream{rc: rc, stream: stream, runID: runID, maxLen: maxLen}
}

func (s *RedisStream) Write(ctx context.Context, t jitter.Trip) error {
	props, err := json.Marshal(t.Properties)
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"run_id":     s.runID,
			"origin_lon": t.Origin.Lon(),
			"origin_lat": t.Origin.Lat(),
			"dest_lon":   t.Destination.Lon(),
			"dest_lat":   t.Destination.Lat(),
			"properties": string(props),
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	return s.rc.XAdd(ctx, args).Err()
}
