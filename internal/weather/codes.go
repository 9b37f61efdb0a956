package weather

// descriptions maps WMO weather interpretation codes to short phrases
// that read naturally after "It's 72° and ...".
var descriptions = map[int]string{
	0:  "clear",
	1:  "mostly clear",
	2:  "partly cloudy",
	3:  "overcast",
	45: "foggy",
	48: "foggy with rime",
	51: "drizzling lightly",
	53: "drizzling",
	55: "drizzling heavily",
	56: "freezing drizzle",
	57: "heavy freezing drizzle",
	61: "raining lightly",
	63: "raining",
	65: "raining heavily",
	66: "freezing rain",
	67: "heavy freezing rain",
	71: "snowing lightly",
	73: "snowing",
	75: "snowing heavily",
	77: "snow grains",
	80: "light showers",
	81: "showers",
	82: "violent showers",
	85: "light snow showers",
	86: "heavy snow showers",
	95: "thunderstorms",
	96: "thunderstorms with hail",
	99: "severe thunderstorms with hail",
}

// Describe returns a lowercase description for a WMO weather code, or
// "unsettled" for codes outside the published table.
func Describe(code int) string {
	if d, ok := descriptions[code]; ok {
		return d
	}
	return "unsettled"
}
