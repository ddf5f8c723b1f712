package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"restaurant-api/internal/client"
	"restaurant-api/internal/otp"
	"restaurant-api/internal/util"
)

const (
	otpPrefix = "otp:"

	fieldCodeHash  = "code_hash"
	fieldCreatedAt = "created_at"
	fieldAttempts  = "attempts"
)

// incrementAttemptsScript bumps the attempt counter only when the record exists
// and returns the whole hash so the caller sees a consistent snapshot.
var incrementAttemptsScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return redis.call('HGETALL', KEYS[1])
`)

// OTPCache is an otp.Store backed by one Redis hash per phone.
type OTPCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewOTPCache(client *client.RedisClient, expiry time.Duration) *OTPCache {
	return &OTPCache{client: client, ttl: otp.Retention(expiry)}
}

func (c *OTPCache) Save(ctx context.Context, phone string, rec otp.Record) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key := otpPrefix + phone
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, encodeRecord(rec))
	pipe.PExpire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		util.Error("Failed to store OTP",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err))
		return fmt.Errorf("failed to store OTP: %w", err)
	}
	return nil
}

func (c *OTPCache) Get(ctx context.Context, phone string) (otp.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	fields, err := c.client.HGetAll(ctx, otpPrefix+phone)
	if err != nil {
		return otp.Record{}, fmt.Errorf("failed to read OTP: %w", err)
	}
	if len(fields) == 0 {
		return otp.Record{}, otp.ErrNoPendingCode
	}
	return decodeRecord(fields)
}

func (c *OTPCache) IncrementAttempts(ctx context.Context, phone string) (otp.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := c.client.RunScript(ctx, incrementAttemptsScript, []string{otpPrefix + phone})
	if errors.Is(err, goredis.Nil) {
		return otp.Record{}, otp.ErrNoPendingCode
	}
	if err != nil {
		util.Error("Failed to increment OTP attempts",
			util.String("phone", util.MaskPhone(phone)),
			util.ErrorField(err))
		return otp.Record{}, fmt.Errorf("failed to increment OTP attempts: %w", err)
	}

	fields, err := pairsToMap(res)
	if err != nil {
		return otp.Record{}, err
	}
	return decodeRecord(fields)
}

func (c *OTPCache) Delete(ctx context.Context, phone string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, otpPrefix+phone); err != nil {
		return fmt.Errorf("failed to delete OTP: %w", err)
	}
	return nil
}

func encodeRecord(rec otp.Record) map[string]interface{} {
	return map[string]interface{}{
		fieldCodeHash:  rec.CodeHash,
		fieldCreatedAt: strconv.FormatInt(rec.CreatedAt.UnixNano(), 10),
		fieldAttempts:  strconv.Itoa(rec.Attempts),
	}
}

func decodeRecord(fields map[string]string) (otp.Record, error) {
	createdAt, err := strconv.ParseInt(fields[fieldCreatedAt], 10, 64)
	if err != nil {
		return otp.Record{}, fmt.Errorf("corrupt OTP record: created_at: %w", err)
	}
	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return otp.Record{}, fmt.Errorf("corrupt OTP record: attempts: %w", err)
	}
	return otp.Record{
		CodeHash:  fields[fieldCodeHash],
		CreatedAt: time.Unix(0, createdAt).UTC(),
		Attempts:  attempts,
	}, nil
}

// pairsToMap converts a flat HGETALL reply into a map.
func pairsToMap(reply interface{}) (map[string]string, error) {
	items, ok := reply.([]interface{})
	if !ok || len(items)%2 != 0 {
		return nil, fmt.Errorf("unexpected script reply %T", reply)
	}
	out := make(map[string]string, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, kok := items[i].(string)
		v, vok := items[i+1].(string)
		if !kok || !vok {
			return nil, fmt.Errorf("unexpected script reply element types %T/%T", items[i], items[i+1])
		}
		out[k] = v
	}
	return out, nil
}
