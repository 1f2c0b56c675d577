package assistant

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode"

	"github.com/i474232898/weather-assistant/internal/common"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

var mockSuggestions = map[string]string{
	session.ThemeTravel:      "今日は近くの公園や観光地を散策するのがおすすめです。カメラを持って景色を撮りに出かけてみませんか。",
	session.ThemeFashion:     "この気温なら薄手の長袖シャツに軽い上着がちょうど良いでしょう。明るい色で季節感を出してみましょう。",
	session.ThemeSports:      "ジョギングやサイクリングに向いた天気です。水分補給を忘れずに体を動かしましょう。",
	session.ThemeMusic:       "アップテンポな曲が合いそうな日です。お気に入りのプレイリストを聴きながら出かけてみませんか。",
	session.ThemeAgriculture: "水やりや剪定に向いた日です。ガーデニングを楽しむのにも良いでしょう。",
	session.ThemeGeneral:     "一日を通して過ごしやすそうです。家事や買い物、友人との外出など何をするにも良い天気です。",
}

// Mock answers without a model. Replies are chosen deterministically from the input.
type Mock struct {
	now func() time.Time
}

func NewMock() *Mock {
	return &Mock{now: time.Now}
}

func (m *Mock) Reply(ctx context.Context, message string, c Context) (ChatReply, error) {
	return ChatReply{Text: mockReply(message, c), Timestamp: m.now().UTC()}, nil
}

func (m *Mock) Classify(ctx context.Context, transcript string, c Context) (VoiceIntent, error) {
	v := VoiceIntent{
		Intent:       IntentGeneralChat,
		Timeframe:    "今日",
		ActivityType: generalActivity,
	}
	if common.HasAny(transcript, "天気", "気温") || common.HasAnyFold(transcript, "weather", "temperature") {
		v.Intent = IntentWeatherQuery
	}
	if common.HasAny(transcript, "旅行", "外出") || common.HasAnyFold(transcript, "travel", "trip") {
		v.Intent = IntentTravelSuggestion
		v.ActivityType = "旅行"
	}
	if common.HasAny(transcript, "東京") || common.HasAnyFold(transcript, "tokyo") {
		v.Location = "東京"
	}
	if common.HasAny(transcript, "明日") || common.HasAnyFold(transcript, "tomorrow") {
		v.Timeframe = "明日"
	}

	replyCtx := c
	if replyCtx.Weather == nil && v.Location != "" {
		replyCtx.Weather = &session.WeatherData{Location: v.Location, Temperature: 22, Description: "晴れ"}
	}
	v.Response = mockReply(transcript, replyCtx)
	return v, nil
}

func (m *Mock) Suggest(ctx context.Context, snap weather.WeatherSnapshot, prefs session.Preferences) (session.Suggestion, error) {
	prefs = prefs.WithDefaults()
	text, ok := mockSuggestions[prefs.Theme]
	if !ok {
		text = mockSuggestions[session.ThemeGeneral]
	}
	return session.Suggestion{
		Theme:          prefs.Theme,
		Suggestion:     text,
		Confidence:     0.8,
		WeatherContext: weatherContext(snap),
		Timestamp:      m.now().UTC(),
	}, nil
}

func mockReply(message string, c Context) string {
	place, temp, desc := "東京", "22", "晴れ"
	humidity, wind := "65", "3.5"
	if w := c.Weather; w != nil {
		place = w.Location
		temp = fmt.Sprintf("%.0f", w.Temperature)
		desc = w.Description
		humidity = fmt.Sprintf("%.0f", w.Humidity)
		wind = fmt.Sprintf("%.1f", w.WindSpeed)
	}

	var replies []string
	switch {
	case isChinese(message) || strings.HasPrefix(c.Language, "zh"):
		replies = []string{
			fmt.Sprintf("您好！您想了解%s的天气吗？", place),
			fmt.Sprintf("当前气温%s度，天气%s。", temp, desc),
			"今天天气不错，适合外出散步或购物！",
			fmt.Sprintf("湿度%s%%，风速%s米/秒。", humidity, wind),
			"这样的天气建议穿轻便的衣服，别忘了防晒！",
		}
	case c.Language == "en":
		replies = []string{
			fmt.Sprintf("Hi! You're asking about the weather in %s.", place),
			fmt.Sprintf("It's %s°C and %s right now.", temp, desc),
			"It's a nice day to go out for a walk or some shopping!",
			fmt.Sprintf("Humidity is %s%% and the wind is %s m/s.", humidity, wind),
			"Light clothing works well in this weather. Don't forget sunscreen!",
		}
	default:
		replies = []string{
			fmt.Sprintf("こんにちは！%sの天気についてですね。", place),
			fmt.Sprintf("現在の気温は%s度で、%sです。", temp, desc),
			"今日は外出に良い天気ですね！散歩や買い物はいかがでしょうか。",
			fmt.Sprintf("湿度は%s%%、風速は%sm/sです。", humidity, wind),
			"このような天気では軽い服装がおすすめです。日焼け止めもお忘れなく！",
		}
	}

	h := fnv.New32a()
	_, _ = h.Write([]byte(message))
	return replies[int(h.Sum32()%uint32(len(replies)))]
}

// isChinese reports Han text without any kana, which would mark it as Japanese.
func isChinese(s string) bool {
	han := false
	for _, r := range s {
		switch {
		case unicode.In(r, unicode.Hiragana, unicode.Katakana):
			return false
		case unicode.Is(unicode.Han, r):
			han = true
		}
	}
	return han
}
