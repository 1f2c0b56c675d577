package assistant

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/i474232898/weather-assistant/internal/common"
	"github.com/i474232898/weather-assistant/internal/session"
	"github.com/i474232898/weather-assistant/internal/weather"
)

var themePrompts = map[string]string{
	session.ThemeTravel:      "あなたは旅行アドバイザーです。天気に合わせて、その日に向いている外出先や旅行プランを、服装や持ち物も含めて具体的に提案してください。",
	session.ThemeFashion:     "あなたはファッションアドバイザーです。天気と気温に合う服装を具体的に提案してください。",
	session.ThemeSports:      "あなたはスポーツアドバイザーです。天候条件に合った安全に楽しめる運動を提案してください。",
	session.ThemeMusic:       "あなたは音楽アドバイザーです。天気や気分に合う音楽や音楽活動を提案してください。",
	session.ThemeAgriculture: "あなたは農業アドバイザーです。天気に合わせた農作業や園芸作業を具体的に提案してください。",
	session.ThemeGeneral:     "あなたは生活アドバイザーです。天気に基づいた日常の実用的なアドバイスをしてください。",
}

var languageNames = map[string]string{
	"ja":    "日本語",
	"en":    "英語",
	"zh":    "中国語",
	"zh-CN": "中国語（簡体字）",
	"zh-TW": "中国語（繁体字）",
}

func systemPrompt(theme string) string {
	if p, ok := themePrompts[theme]; ok {
		return p
	}
	return themePrompts[session.ThemeGeneral]
}

func languageName(lang string) string {
	if name, ok := languageNames[lang]; ok {
		return name
	}
	if name, ok := languageNames[strings.SplitN(lang, "-", 2)[0]]; ok {
		return name
	}
	return languageNames[session.DefaultLanguage]
}

func suggestionPrompt(snap weather.WeatherSnapshot, prefs session.Preferences) string {
	prefs = prefs.WithDefaults()
	preferred := "指定なし"
	if prefs.HasLocation() {
		preferred = prefs.Location.City
	}

	var b strings.Builder
	b.WriteString(systemPrompt(prefs.Theme))
	b.WriteString("\n\n---\n現在の天気:\n")
	fmt.Fprintf(&b, "- 場所: %s, %s\n", snap.Location.City, snap.Location.Country)
	fmt.Fprintf(&b, "- 気温: %.1f°C (体感 %.1f°C)\n", snap.Temperature, snap.FeelsLike)
	fmt.Fprintf(&b, "- 天気: %s\n", snap.Description)
	fmt.Fprintf(&b, "- 湿度: %.0f%%\n", snap.Humidity)
	fmt.Fprintf(&b, "- 風速: %.1fm/s\n", snap.WindSpeed)
	fmt.Fprintf(&b, "- 雲量: %.0f%%\n", snap.Cloudiness)
	b.WriteString("\nユーザー設定:\n")
	fmt.Fprintf(&b, "- テーマ: %s\n", prefs.Theme)
	fmt.Fprintf(&b, "- 希望地域: %s\n", preferred)
	fmt.Fprintf(&b, "\n安全で楽しめる実用的な提案を%sで、%d語以内で簡潔に書いてください。", languageName(prefs.Language), MaxWords)
	return b.String()
}

func chatPrompt(message string, c Context) string {
	var b strings.Builder
	fmt.Fprintf(&b, "あなたは親しみやすい天気と生活のアシスタントです。%d語以内で簡潔に答えてください。\n\n", MaxWords)
	b.WriteString("ユーザーメッセージ:\n")
	b.WriteString(message)
	b.WriteString("\n\n現在のコンテキスト:\n")
	if c.Weather != nil {
		fmt.Fprintf(&b, "- 天気: %s\n- 気温: %.1f°C\n- 場所: %s\n", c.Weather.Description, c.Weather.Temperature, c.Weather.Location)
	} else {
		b.WriteString("- 天気: 不明\n")
	}
	city := "未設定"
	if c.Preferences.HasLocation() {
		city = c.Preferences.Location.City
	}
	fmt.Fprintf(&b, "- ユーザーテーマ: %s\n- 希望地域: %s\n", c.Preferences.Theme, city)
	fmt.Fprintf(&b, "\n%sで、実用的かつ親切に答えてください。", languageName(replyLanguage(c)))
	return b.String()
}

func voicePrompt(transcript string, c Context) string {
	desc, temp, place := "不明", "不明", "不明"
	if c.Weather != nil {
		desc = c.Weather.Description
		temp = fmt.Sprintf("%.1f", c.Weather.Temperature)
		place = c.Weather.Location
	}
	return fmt.Sprintf(`次の音声入力からユーザーの意図を読み取ってください。
音声入力: %q

コンテキスト:
- 現在の天気: %s
- 気温: %s°C
- 場所: %s

説明文を付けず、次の形式のJSONだけを返してください:
{
  "intent": "weather_query|travel_suggestion|general_chat",
  "location": "抽出した場所名（なければ空）",
  "timeframe": "今日|明日|今週|不明",
  "activity_type": "旅行|ファッション|スポーツ|音楽|農業|一般",
  "response": "%sで%d語以内の返答"
}`, transcript, desc, temp, place, languageName(replyLanguage(c)), MaxWords)
}

func replyLanguage(c Context) string {
	if c.Language != "" {
		return c.Language
	}
	if c.Preferences.Language != "" {
		return c.Preferences.Language
	}
	return session.DefaultLanguage
}

// parseVoiceIntent extracts the JSON object from raw model output. Output that cannot be
// parsed becomes a general_chat intent whose response is the raw text.
func parseVoiceIntent(raw string) VoiceIntent {
	fallback := VoiceIntent{
		Intent:       IntentGeneralChat,
		Timeframe:    unknownTimeframe,
		ActivityType: generalActivity,
		Response:     common.TruncateWords(raw, MaxWords),
	}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return fallback
	}

	var v VoiceIntent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &v); err != nil {
		return fallback
	}
	switch v.Intent {
	case IntentWeatherQuery, IntentTravelSuggestion, IntentGeneralChat:
	default:
		v.Intent = IntentGeneralChat
	}
	if v.Timeframe == "" {
		v.Timeframe = unknownTimeframe
	}
	if v.ActivityType == "" {
		v.ActivityType = generalActivity
	}
	v.Response = common.TruncateWords(v.Response, MaxWords)
	return v
}

// Confidence scores a suggestion by how complete the weather it was based on is.
func Confidence(snap weather.WeatherSnapshot) float64 {
	measured := len(snap.Providers) > 0
	present := func(v float64) bool { return measured || v != 0 }

	c := 0.5
	if present(snap.Temperature) {
		c += 0.1
	}
	if snap.Description != "" {
		c += 0.1
	}
	if present(snap.Humidity) {
		c += 0.1
	}
	if present(snap.WindSpeed) {
		c += 0.1
	}
	if snap.Location.City != "" {
		c += 0.1
	}
	return math.Min(math.Round(c*10)/10, 1.0)
}

func weatherContext(snap weather.WeatherSnapshot) session.WeatherContext {
	return session.WeatherContext{
		Temperature: snap.Temperature,
		Description: snap.Description,
		Location:    snap.Location.City,
	}
}
