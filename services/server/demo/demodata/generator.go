package demodata

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/HORNET-Storage/trunk-relay/lib/signing"
	"github.com/HORNET-Storage/trunk-relay/lib/types"
)

// DemoDataGenerator produces signed events covering every persistence class
type DemoDataGenerator struct {
	RandomSeed int64
	rng        *rand.Rand

	// Time range settings
	Start time.Time
	End   time.Time

	UserCount         int
	NotesPerUser      int
	ReactionsPerUser  int
	ArticlesPerUser   int
	ArticleRevisions  int
	ProfileRevisions  int
	EphemeralPerUser  int
	Topics            []string

	users []*btcec.PrivateKey
	notes []*types.Event
}

// NewDemoDataGenerator creates a new generator with default settings
func NewDemoDataGenerator() *DemoDataGenerator {
	end := time.Now()
	seed := end.UnixNano()

	return &DemoDataGenerator{
		RandomSeed:       seed,
		rng:              rand.New(rand.NewSource(seed)),
		Start:            end.AddDate(0, -1, 0),
		End:              end,
		UserCount:        20,
		NotesPerUser:     10,
		ReactionsPerUser: 5,
		ArticlesPerUser:  2,
		ArticleRevisions: 2,
		ProfileRevisions: 2,
		EphemeralPerUser: 1,
		Topics:           []string{"nostr", "relay", "golang", "bitcoin", "music"},
	}
}

// Generate returns events in publication order. Replaceable events are
// emitted oldest revision first so the last one wins.
func (g *DemoDataGenerator) Generate() ([]*types.Event, error) {
	if err := g.generateUsers(); err != nil {
		return nil, err
	}

	var events []*types.Event
	for i, key := range g.users {
		for revision := 0; revision < g.ProfileRevisions; revision++ {
			content := fmt.Sprintf(`{"name":"demo-%d","about":"revision %d"}`, i, revision)
			event, err := g.sign(key, 0, content, nil)
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}

		var follows types.Tags
		for j := 0; j < 3 && len(g.users) > 1; j++ {
			other := g.users[g.rng.Intn(len(g.users))]
			follows = append(follows, types.Tag{"p", signing.PublicKeyHex(other)})
		}
		contacts, err := g.sign(key, 3, "", follows)
		if err != nil {
			return nil, err
		}
		events = append(events, contacts)

		for n := 0; n < g.NotesPerUser; n++ {
			topic := g.Topics[g.rng.Intn(len(g.Topics))]
			note, err := g.sign(key, 1, fmt.Sprintf("demo note %d about %s", n, topic), types.Tags{{"t", topic}})
			if err != nil {
				return nil, err
			}
			g.notes = append(g.notes, note)
			events = append(events, note)
		}

		for a := 0; a < g.ArticlesPerUser; a++ {
			slug := fmt.Sprintf("article-%d", a)
			for revision := 0; revision < g.ArticleRevisions; revision++ {
				article, err := g.sign(key, 30023, fmt.Sprintf("# %s\n\nrevision %d", slug, revision), types.Tags{{"d", slug}, {"title", slug}})
				if err != nil {
					return nil, err
				}
				events = append(events, article)
			}
		}

		for e := 0; e < g.EphemeralPerUser; e++ {
			ephemeral, err := g.sign(key, 20001, "typing", nil)
			if err != nil {
				return nil, err
			}
			events = append(events, ephemeral)
		}
	}

	for _, key := range g.users {
		for r := 0; r < g.ReactionsPerUser && len(g.notes) > 0; r++ {
			target := g.notes[g.rng.Intn(len(g.notes))]
			reaction, err := g.sign(key, 7, "+", types.Tags{{"e", target.ID}, {"p", target.PubKey}})
			if err != nil {
				return nil, err
			}
			events = append(events, reaction)
		}
	}

	return events, nil
}

func (g *DemoDataGenerator) generateUsers() error {
	g.users = make([]*btcec.PrivateKey, g.UserCount)
	for i := range g.users {
		key, err := signing.GeneratePrivateKey()
		if err != nil {
			return fmt.Errorf("failed to generate demo user: %w", err)
		}
		g.users[i] = key
	}
	return nil
}

func (g *DemoDataGenerator) sign(key *btcec.PrivateKey, kind uint16, content string, tags types.Tags) (*types.Event, error) {
	event := &types.Event{
		CreatedAt: g.randomTimestamp(),
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
	if err := signing.Sign(event, key); err != nil {
		return nil, err
	}
	return event, nil
}

func (g *DemoDataGenerator) randomTimestamp() int64 {
	span := g.End.Unix() - g.Start.Unix()
	if span <= 0 {
		return g.End.Unix()
	}
	return g.Start.Unix() + g.rng.Int63n(span)
}
