// Package hitdex embeds the hitdex result engine in a Go program.
//
// A Client owns a registry of search sessions. Each session groups the raw hits
// reported for one query into rows, keeps them sorted and filtered, and reports
// every row change as a notification.
//
//	client, _ := hitdex.New(ctx)
//	defer client.Close()
//
//	s, _ := client.Start(ctx, "free software song")
//	_, _ = s.Ingest(ctx, hitdex.Hit{Name: "Free Software Song", Extension: "ogg", Size: 5 << 20, Host: "10.0.0.7", Port: 6346})
//	_ = s.SetSort(ctx, hitdex.SortByLocations, false)
//	_ = s.SetFilter(ctx, 0, hitdex.Filter{Must: []hitdex.Condition{hitdex.Match("extension", "ogg")}})
//	rows, total, _ := s.Rows(ctx, 0, 20)
//
// Removed sessions are archived when the client is connected to Redis or Valkey
// (see WithRedis and WithValkey).
package hitdex
