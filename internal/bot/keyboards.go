package bot

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/FranksOps/bubblescope/internal/domain"
)

const selectPrefix = "select:"

func shortAddress(a string) string {
	if len(a) <= 12 {
		return a
	}
	return a[:6] + "..." + a[len(a)-4:]
}

func selectionKeyboard(cands []domain.SearchCandidate) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(cands))
	for i, c := range cands {
		label := fmt.Sprintf("%s (%s)", c.Name, shortAddress(c.ContractAddress))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, selectPrefix+strconv.Itoa(i)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// parseSelection reads the candidate index from callback data.
func parseSelection(data string) (int, bool) {
	rest, ok := strings.CutPrefix(data, selectPrefix)
	if !ok {
		return 0, false
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}
