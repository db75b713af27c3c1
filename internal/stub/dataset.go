package stub

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type user struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Locale     string    `json:"locale"`
	Picture    string    `json:"picture"`
	Rating     float64   `json:"rating"`
	Membership string    `json:"membership"`
	CreatedAt  time.Time `json:"createdAt"`
}

type userRating struct {
	UserID   string  `json:"userId"`
	Username string  `json:"username"`
	Rating   float64 `json:"rating"`
	RD       float64 `json:"rd"`
}

type playerRecord struct {
	ID        string  `json:"id"`
	Rating    float64 `json:"rating"`
	NewRating float64 `json:"newRating"`
}

type matchResult struct {
	UserID    string       `json:"userId"`
	MatchID   string       `json:"matchId"`
	Opponent  playerRecord `json:"opponent"`
	Result    float64      `json:"result"`
	Timestamp time.Time    `json:"timestamp"`
}

type player struct {
	ID         string    `json:"Id"`
	Rating     float64   `json:"Rating"`
	NewRatings []float64 `json:"NewRatings"`
}

type activeMatch struct {
	MatchID   string    `json:"MatchId"`
	Player1   player    `json:"Player1"`
	Player2   player    `json:"Player2"`
	GameMode  string    `json:"GameMode"`
	Server    string    `json:"Server"`
	CreatedAt time.Time `json:"CreatedAt"`
}

type friendship struct {
	UserID         string    `json:"userId"`
	FriendID       string    `json:"friendId"`
	ConversationID string    `json:"conversationId"`
	Status         string    `json:"status"`
	StartedAt      time.Time `json:"startedAt"`
}

type listResponse[T any] struct {
	Items         []T     `json:"items"`
	NextPageToken *string `json:"nextPageToken,omitempty"`
}

// dataset is the fixed set of records the stub answers with.
type dataset struct {
	users   []user
	ratings []userRating
	results []matchResult
	active  []activeMatch
	friends []friendship
}

const datasetSize = 10

func newDataset(now time.Time) *dataset {
	d := &dataset{}
	for i := 0; i < datasetSize; i++ {
		rating := 1200 + float64(i)*25
		d.users = append(d.users, user{
			ID:         uuid.NewString(),
			Username:   fmt.Sprintf("player%02d", i),
			Locale:     "vi",
			Picture:    fmt.Sprintf("https://example.com/avatars/%02d.png", i),
			Rating:     rating,
			Membership: "guest",
			CreatedAt:  now.Add(-time.Duration(i) * 24 * time.Hour),
		})
	}

	me := d.users[0]
	for i, u := range d.users {
		d.ratings = append(d.ratings, userRating{
			UserID:   u.ID,
			Username: u.Username,
			Rating:   u.Rating,
			RD:       50 + float64(i),
		})
	}

	for i, u := range d.users[1:] {
		d.results = append(d.results, matchResult{
			UserID:  me.ID,
			MatchID: uuid.NewString(),
			Opponent: playerRecord{
				ID:        u.ID,
				Rating:    u.Rating,
				NewRating: u.Rating + 8,
			},
			Result:    float64(i % 2),
			Timestamp: now.Add(-time.Duration(i+1) * time.Hour),
		})

		d.friends = append(d.friends, friendship{
			UserID:         me.ID,
			FriendID:       u.ID,
			ConversationID: uuid.NewString(),
			Status:         "active",
			StartedAt:      now.Add(-time.Duration(i+1) * 48 * time.Hour),
		})
	}

	for i := 1; i+1 < len(d.users); i += 2 {
		p1, p2 := d.users[i], d.users[i+1]
		d.active = append(d.active, activeMatch{
			MatchID:   uuid.NewString(),
			Player1:   player{ID: p1.ID, Rating: p1.Rating, NewRatings: []float64{p1.Rating + 8, p1.Rating, p1.Rating - 8}},
			Player2:   player{ID: p2.ID, Rating: p2.Rating, NewRatings: []float64{p2.Rating + 8, p2.Rating, p2.Rating - 8}},
			GameMode:  "10+0",
			Server:    "127.0.0.1:7202",
			CreatedAt: now.Add(-time.Duration(i) * time.Minute),
		})
	}

	return d
}
