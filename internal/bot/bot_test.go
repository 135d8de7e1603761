package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FranksOps/bubblescope/internal/domain"
	"github.com/FranksOps/bubblescope/internal/session"
)

const (
	chatID = int64(1001)
	fromID = int64(7)
	usdt   = "0xdac17f958d2ee523a2206206994597c13d831ec7"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	failSend func(tgbotapi.Chattable) bool
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSend != nil && f.failSend(c) {
		return tgbotapi.Message{}, errors.New("telegram: bad request")
	}
	f.sent = append(f.sent, c)
	return tgbotapi.Message{MessageID: 500 + len(f.sent)}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeSender) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.PhotoConfig:
			out = append(out, m.Caption)
		}
	}
	return out
}

func (f *fakeSender) callbacks() []tgbotapi.CallbackConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, c := range f.requests {
		if cb, ok := c.(tgbotapi.CallbackConfig); ok {
			out = append(out, cb)
		}
	}
	return out
}

type fakeSearcher struct {
	cands []domain.SearchCandidate
	err   error
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, symbol string, chain domain.Chain) ([]domain.SearchCandidate, error) {
	f.calls++
	return f.cands, f.err
}

type fakeRunner struct {
	mu       sync.Mutex
	result   *domain.PipelineResult
	graph    *domain.GraphResult
	err      error
	runs     []string
	graphRun []string
}

func (f *fakeRunner) Run(_ context.Context, address string, chain domain.Chain) (*domain.PipelineResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, string(chain)+":"+address)
	return f.result, f.err
}

func (f *fakeRunner) RunGraph(_ context.Context, address string, chain domain.Chain) (*domain.GraphResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphRun = append(f.graphRun, string(chain)+":"+address)
	return f.graph, f.err
}

func command(text string) tgbotapi.Update {
	word, _, _ := strings.Cut(text, " ")
	return tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 10,
		Text:      text,
		Chat:      &tgbotapi.Chat{ID: chatID},
		From:      &tgbotapi.User{ID: fromID},
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(word)}},
	}}
}

func callback(data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: fromID},
		Message: &tgbotapi.Message{MessageID: 501, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    data,
	}}
}

type fixture struct {
	sender   *fakeSender
	searcher *fakeSearcher
	runner   *fakeRunner
	sessions *session.Memory
	bot      *Bot
}

func newFixture() *fixture {
	f := &fixture{
		sender:   &fakeSender{},
		searcher: &fakeSearcher{},
		runner: &fakeRunner{result: &domain.PipelineResult{
			Status:        domain.StatusSuccess,
			TokenData:     &domain.TokenMarketData{Name: "Tether", Symbol: "USDT", Description: "Stablecoin"},
			ScreenshotURL: "https://cdn.test/bubble-map-screenshots/eth-" + usdt + ".jpg",
		}},
		sessions: session.NewMemory(time.Minute, 100),
	}
	f.bot = New(f.sender, f.searcher, f.runner, f.sessions, Config{}, nil)
	return f
}

func TestHelp(t *testing.T) {
	f := newFixture()
	f.bot.Handle(context.Background(), command("/start"))
	f.bot.Handle(context.Background(), command("/help"))

	texts := f.sender.texts()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "/bm <address>/<chain>")
	assert.Contains(t, texts[0], "sol")
	assert.Equal(t, texts[0], texts[1])
}

func TestMap(t *testing.T) {
	f := newFixture()
	f.runner.graph = &domain.GraphResult{
		PageURL:       "https://cdn.test/bubble-map-pages/eth-" + usdt + ".html",
		ScreenshotURL: "https://cdn.test/bubble-map-image/eth-" + usdt + ".jpg",
	}

	f.bot.Handle(context.Background(), command("/bm "+usdt+"/ETH"))

	assert.Equal(t, []string{"eth:" + usdt}, f.runner.graphRun)
	require.Len(t, f.sender.sent, 1)
	photo, ok := f.sender.sent[0].(tgbotapi.PhotoConfig)
	require.True(t, ok, "expected a photo, got %T", f.sender.sent[0])
	assert.Equal(t, tgbotapi.FileURL(f.runner.graph.ScreenshotURL), photo.File)
	assert.Contains(t, photo.Caption, f.runner.graph.PageURL)
	assert.Equal(t, 10, photo.ReplyToMessageID)
}

func TestMapWithoutImageSendsLink(t *testing.T) {
	f := newFixture()
	f.runner.graph = &domain.GraphResult{PageURL: "https://cdn.test/page.html"}

	f.bot.Handle(context.Background(), command("/bm "+usdt+"/eth"))

	texts := f.sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "https://cdn.test/page.html")
}

func TestMapValidation(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"no args", "/bm", "Please use the format"},
		{"no chain", "/bm " + usdt, "Please use the format"},
		{"bad chain", "/bm " + usdt + "/doge", "not a supported chain"},
		{"bad address", "/bm 0x123/eth", "not a valid Ethereum address"},
		{"evm address on solana", "/bm " + usdt + "/sol", "not a valid Solana address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.bot.Handle(context.Background(), command(tt.text))

			texts := f.sender.texts()
			require.Len(t, texts, 1)
			assert.Contains(t, texts[0], tt.want)
			assert.Empty(t, f.runner.graphRun)
		})
	}
}

func TestMapNoListing(t *testing.T) {
	f := newFixture()
	f.runner.err = errors.Join(errors.New("pipeline: graph"), domain.ErrNoListing)

	f.bot.Handle(context.Background(), command("/bm "+usdt+"/eth"))

	texts := f.sender.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "❌ "+domain.UserMessage(domain.ErrNoListing), texts[0])
}

func TestInfoByAddress(t *testing.T) {
	f := newFixture()

	f.bot.Handle(context.Background(), command("/bi "+usdt+"/eth"))

	assert.Zero(t, f.searcher.calls)
	assert.Equal(t, []string{"eth:" + usdt}, f.runner.runs)
	require.Len(t, f.sender.sent, 1)
	photo := f.sender.sent[0].(tgbotapi.PhotoConfig)
	assert.Equal(t, tgbotapi.ModeMarkdown, photo.ParseMode)
	assert.Contains(t, photo.Caption, "Stablecoin")
}

func TestInfoSingleCandidate(t *testing.T) {
	f := newFixture()
	f.searcher.cands = []domain.SearchCandidate{{ExternalID: "tether", Name: "Tether", Chain: domain.ChainETH, ContractAddress: usdt}}

	f.bot.Handle(context.Background(), command("/bi $usdt/eth"))

	assert.Equal(t, 1, f.searcher.calls)
	assert.Equal(t, []string{"eth:" + usdt}, f.runner.runs)
}

func TestInfoNoCandidates(t *testing.T) {
	f := newFixture()

	f.bot.Handle(context.Background(), command("/bi usdt/sol"))

	texts := f.sender.texts()
	require.Len(t, texts, 1)
	assert.Equal(t, "❌ No tokens found for $USDT on Solana.", texts[0])
	assert.Empty(t, f.runner.runs)
}

func TestInfoSelectionFlow(t *testing.T) {
	f := newFixture()
	other := "0x0000000000000000000000000000000000000001"
	f.searcher.cands = []domain.SearchCandidate{
		{ExternalID: "tether", Name: "Tether", Chain: domain.ChainETH, ContractAddress: usdt},
		{ExternalID: "bridged", Name: "Bridged USDT", Chain: domain.ChainETH, ContractAddress: other},
	}

	f.bot.Handle(context.Background(), command("/bi usdt/eth"))

	require.Len(t, f.sender.sent, 1)
	prompt := f.sender.sent[0].(tgbotapi.MessageConfig)
	kb, ok := prompt.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "Bridged USDT (0x0000...0001)", kb.InlineKeyboard[1][0].Text)
	assert.Equal(t, "select:1", *kb.InlineKeyboard[1][0].CallbackData)
	assert.Empty(t, f.runner.runs)

	f.bot.Handle(context.Background(), callback("select:1"))

	assert.Equal(t, []string{"eth:" + other}, f.runner.runs)

	var deleted bool
	for _, r := range f.sender.requests {
		if d, ok := r.(tgbotapi.DeleteMessageConfig); ok && d.MessageID == 501 {
			deleted = true
		}
	}
	assert.True(t, deleted, "keyboard message is removed")

	// The selection is consumed.
	f.bot.Handle(context.Background(), callback("select:0"))
	cbs := f.sender.callbacks()
	require.NotEmpty(t, cbs)
	assert.Equal(t, "Session expired. Please try again.", cbs[len(cbs)-1].Text)
	assert.Len(t, f.runner.runs, 1)
}

func TestCallbackOutOfRange(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.sessions.Put(context.Background(), fromID, session.Selection{
		Chain:      domain.ChainETH,
		Candidates: []domain.SearchCandidate{{ContractAddress: usdt}},
	}))

	f.bot.Handle(context.Background(), callback("select:5"))

	cbs := f.sender.callbacks()
	require.Len(t, cbs, 1)
	assert.Equal(t, "Unknown selection.", cbs[0].Text)
	assert.Empty(t, f.runner.runs)

	// The selection survives the bad press.
	f.bot.Handle(context.Background(), callback("select:0"))
	assert.Equal(t, []string{"eth:" + usdt}, f.runner.runs)
}

func TestProcessFallsBackToText(t *testing.T) {
	f := newFixture()
	f.sender.failSend = func(c tgbotapi.Chattable) bool {
		_, isPhoto := c.(tgbotapi.PhotoConfig)
		return isPhoto
	}

	f.bot.Handle(context.Background(), command("/bi "+usdt+"/eth"))

	texts := f.sender.texts()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "Stablecoin")
}

func TestStartDrainsInFlight(t *testing.T) {
	f := newFixture()
	updates := make(chan tgbotapi.Update, 3)
	updates <- command("/help")
	updates <- command("/help")
	updates <- command("/nope")
	close(updates)

	f.bot.Start(context.Background(), updates)

	texts := f.sender.texts()
	require.Len(t, texts, 3)
	assert.Contains(t, texts, "Unknown command. Send /help to see what I can do.")
}

func TestParseSelection(t *testing.T) {
	tests := []struct {
		data string
		idx  int
		ok   bool
	}{
		{"select:0", 0, true},
		{"select:12", 12, true},
		{"select:-1", 0, false},
		{"select:x", 0, false},
		{"menu_1", 0, false},
	}
	for _, tt := range tests {
		idx, ok := parseSelection(tt.data)
		assert.Equal(t, tt.ok, ok, tt.data)
		assert.Equal(t, tt.idx, idx, tt.data)
	}
}
