package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// RatingRules are the point values awarded by rating producers.
type RatingRules struct {
	DailyLoginPoints   int64 `mapstructure:"dailyLoginPoints"`
	StreakBonusEvery   int   `mapstructure:"streakBonusEvery"`
	StreakBonusPoints  int64 `mapstructure:"streakBonusPoints"`
	BoostPoints        int64 `mapstructure:"boostPoints"`
	AchievementDefault int64 `mapstructure:"achievementDefault"`
}

func DefaultRatingRules() RatingRules {
	return RatingRules{
		DailyLoginPoints:   1,
		StreakBonusEvery:   7,
		StreakBonusPoints:  5,
		BoostPoints:        3,
		AchievementDefault: 5,
	}
}

type RatingRulesHolder struct {
	current atomic.Value // holds RatingRules
}

// NewStaticRatingRulesHolder returns a holder that never reloads.
func NewStaticRatingRulesHolder(rules RatingRules) *RatingRulesHolder {
	holder := &RatingRulesHolder{}
	holder.current.Store(rules)
	return holder
}

func NewRatingRulesHolder() (*RatingRulesHolder, error) {
	v := viper.New()

	v.SetConfigName("rating")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tradeboard/config")
	v.AddConfigPath("/etc/tradeboard")
	v.AddConfigPath(".")

	v.SetEnvPrefix("TRADEBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultRatingRules()
	v.SetDefault("rating.dailyLoginPoints", defaults.DailyLoginPoints)
	v.SetDefault("rating.streakBonusEvery", defaults.StreakBonusEvery)
	v.SetDefault("rating.streakBonusPoints", defaults.StreakBonusPoints)
	v.SetDefault("rating.boostPoints", defaults.BoostPoints)
	v.SetDefault("rating.achievementDefault", defaults.AchievementDefault)

	watch := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		watch = false
	}

	rules, err := decodeRatingRules(v)
	if err != nil {
		return nil, err
	}
	if err := ValidateRatingRules(rules); err != nil {
		return nil, err
	}

	holder := NewStaticRatingRulesHolder(rules)
	if !watch {
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeRatingRules(v)
		if err != nil {
			log.Printf("[rating-rules] reload failed: %v", err)
			return
		}
		if err := ValidateRatingRules(updated); err != nil {
			log.Printf("[rating-rules] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[rating-rules] reloaded from %s", e.Name)
	})

	return holder, nil
}

// decodeRatingRules goes through AllSettings so defaults fill keys the file omits.
func decodeRatingRules(v *viper.Viper) (RatingRules, error) {
	var wrapper struct {
		Rating RatingRules `mapstructure:"rating"`
	}
	if err := v.Unmarshal(&wrapper); err != nil {
		return RatingRules{}, err
	}
	return wrapper.Rating, nil
}

func (h *RatingRulesHolder) Get() RatingRules {
	if h == nil {
		return DefaultRatingRules()
	}
	return h.current.Load().(RatingRules)
}

func ValidateRatingRules(rules RatingRules) error {
	if rules.DailyLoginPoints <= 0 {
		return errors.New("rating.dailyLoginPoints must be positive")
	}
	if rules.StreakBonusEvery <= 0 {
		return errors.New("rating.streakBonusEvery must be positive")
	}
	if rules.StreakBonusPoints < 0 {
		return errors.New("rating.streakBonusPoints cannot be negative")
	}
	if rules.BoostPoints < 0 {
		return errors.New("rating.boostPoints cannot be negative")
	}
	if rules.AchievementDefault < 0 {
		return fmt.Errorf("rating.achievementDefault cannot be negative: %d", rules.AchievementDefault)
	}
	return nil
}
