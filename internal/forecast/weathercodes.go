package forecast

import "strconv"

// weatherCodeText maps JMA telop codes to their display text.
var weatherCodeText = map[string]string{
	"100": "晴れ",
	"101": "晴れ時々曇り",
	"102": "晴れ一時雨",
	"103": "晴れ時々雨",
	"104": "晴れ一時雪",
	"105": "晴れ時々雪",
	"110": "晴れ後時々曇り",
	"111": "晴れ後曇り",
	"112": "晴れ後一時雨",
	"113": "晴れ後時々雨",
	"114": "晴れ後雨",
	"115": "晴れ後一時雪",
	"117": "晴れ後雪",
	"130": "朝の内霧後晴れ",
	"131": "晴れ明け方霧",
	"200": "曇り",
	"201": "曇り時々晴れ",
	"202": "曇り一時雨",
	"203": "曇り時々雨",
	"204": "曇り一時雪",
	"205": "曇り時々雪",
	"206": "曇り一時雨か雪",
	"209": "霧",
	"210": "曇り後時々晴れ",
	"211": "曇り後晴れ",
	"212": "曇り後一時雨",
	"213": "曇り後時々雨",
	"214": "曇り後雨",
	"215": "曇り後一時雪",
	"217": "曇り後雪",
	"218": "曇り後雨か雪",
	"300": "雨",
	"301": "雨時々晴れ",
	"302": "雨時々止む",
	"303": "雨時々雪",
	"308": "暴風雨",
	"311": "雨後晴れ",
	"313": "雨後曇り",
	"314": "雨後時々雪",
	"315": "雨後雪",
	"400": "雪",
	"401": "雪時々晴れ",
	"402": "雪時々止む",
	"403": "雪時々雨",
	"406": "風雪強い",
	"407": "暴風雪",
	"411": "雪後晴れ",
	"413": "雪後曇り",
	"414": "雪後雨",
}

const unknownWeather = "不明"

// WeatherText resolves a weather code to text. Codes missing from the table
// fall back to their hundred's family.
func WeatherText(code string) string {
	if text, ok := weatherCodeText[code]; ok {
		return text
	}
	n, err := strconv.Atoi(code)
	if err != nil {
		return unknownWeather
	}
	switch {
	case n >= 100 && n <= 199:
		return "晴れ系"
	case n >= 200 && n <= 299:
		return "曇り系"
	case n >= 300 && n <= 399:
		return "雨系"
	case n >= 400 && n <= 499:
		return "雪系"
	default:
		return unknownWeather
	}
}
