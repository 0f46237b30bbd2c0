// Package redis stores chat sessions in Redis.
//
// Each session uses two keys under a configurable prefix (default "educhat:"):
//
//	educhat:session:<id>            JSON session metadata
//	educhat:session:<id>:messages   list of JSON messages, oldest first
//
// A set at educhat:sessions indexes the IDs for listing. With a TTL set, both
// keys expire together and every append refreshes the expiry.
//
//	sessions := redis.NewSessionStore(redis.RedisOptions{
//		Addr: "localhost:6379",
//		TTL:  24 * time.Hour,
//	})
//	defer sessions.Close()
package redis
