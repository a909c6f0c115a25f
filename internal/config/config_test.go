package config_test

import (
	"errors"
	"runtime"
	"testing"
	"time"

	"github.com/okian/venuestats/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.EventQueueSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 500_000)
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.VenuePageSize, convey.ShouldEqual, 1000)
			convey.So(cfg.StoreTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Brokers(t *testing.T) {
	convey.Convey("Given a comma separated broker list", t, func() {
		cfg := config.New()
		cfg.KafkaBrokers = " kafka-1:9092, ,kafka-2:9092 "

		convey.So(cfg.Brokers(), convey.ShouldResemble, []string{"kafka-1:9092", "kafka-2:9092"})
	})

	convey.Convey("Given no brokers", t, func() {
		convey.So(config.New().Brokers(), convey.ShouldBeEmpty)
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given configs the service cannot run with", t, func() {
		cases := map[string]func(*config.Config){
			"empty addr":         func(c *config.Config) { c.Addr = "" },
			"zero queue":         func(c *config.Config) { c.EventQueueSize = 0 },
			"negative workers":   func(c *config.Config) { c.WorkerCount = -1 },
			"zero page size":     func(c *config.Config) { c.VenuePageSize = 0 },
			"zero store timeout": func(c *config.Config) { c.StoreTimeoutMS = 0 },
			"unknown store":      func(c *config.Config) { c.Store = "cassandra" },
			"postgres no dsn":    func(c *config.Config) { c.Store = config.StorePostgres },
			"redis no addr": func(c *config.Config) {
				c.Store = config.StoreRedis
				c.RedisAddr = ""
			},
			"brokers no topic": func(c *config.Config) {
				c.KafkaBrokers = "localhost:9092"
				c.KafkaTopic = ""
			},
		}

		for name, mutate := range cases {
			cfg := config.New()
			mutate(cfg)
			err := cfg.Validate()
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			_ = name
		}
	})

	convey.Convey("Given a redis config with an address", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreRedis
		convey.So(cfg.Validate(), convey.ShouldBeNil)
	})
}
