// Package redisfeed publishes task progress to a Redis pub/sub channel.
//
// A Feed implements scheduler.ProgressReceiver, so it can be plugged into a
// task's Progress hook directly:
//
//	rdb := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	feed, err := redisfeed.New(redisfeed.Config{Redis: rdb, Channel: "render:progress"})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	task := scheduler.NewTask(&scheduler.Hooks{
//		Execute:  renderFrames,
//		Progress: feed.OnProgress,
//	})
//
// Each payload is JSON-encoded into a Message carrying the task id, the
// publishing instance and a per-feed sequence number. Payload values must be
// JSON-encodable; scheduler.Payload is.
//
// A failed publish is returned to the scheduler, which cancels the task,
// unless Config.Fallback is set, in which case the payload goes to the
// fallback receiver instead.
package redisfeed
