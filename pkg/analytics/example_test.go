package analytics_test

import (
	"context"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/platinummonkey/beacon/pkg/adapters/redisprofile"
	"github.com/platinummonkey/beacon/pkg/analytics"
)

var (
	firstLaunchWeek = analytics.NewUserPropertyKey[string]("first_launch_week",
		analytics.WithMutability(analytics.Immutable))
	purchases = analytics.NewUserPropertyKey[int]("purchase_count")
)

func Example() {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	defer mr.Close()

	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	profiles := redisprofile.NewWithClient(client, "", 0, logger)
	defer profiles.Close()
	profiles.SetUserID(ctx, "u1")

	d := analytics.NewDispatcher(analytics.WithLogger(logger))
	d.RegisterUserDataDirector(profiles)

	analytics.SetProperty(ctx, d, "2019.20", firstLaunchWeek)
	analytics.SetProperty(ctx, d, "2024.02", firstLaunchWeek)
	analytics.IncrementProperty(ctx, d, 1, purchases)
	analytics.IncrementProperty(ctx, d, 1, purchases)

	profile, err := profiles.Profile(ctx, "u1")
	if err != nil {
		panic(err)
	}
	fmt.Println(profile)
	// Output: map[first_launch_week:2019.20 purchase_count:2]
}
