package locale

var englishLocale = Locale{
	Code:           English,
	RecognitionTag: "en-US",
	SynthesisTag:   "en-US",
	Label:          "Hindi",
	Language:       "English",
	Strings: Strings{
		Welcome:          `"Speak your heart, and the ancient wisdom shall guide you."`,
		Error:            "Unable to connect to the divine source.",
		QuotaError:       "API quota exceeded. Please try again later.",
		PermissionDenied: "Microphone access denied.",
		CaptureFailed:    "Listening failed. Try again.",
		PlaybackFailed:   "Unable to speak the guidance aloud.",
		Unsupported:      "Speech recognition is not available on this system.",
	},
}

var hindiLocale = Locale{
	Code:           Hindi,
	RecognitionTag: "hi-IN",
	SynthesisTag:   "hi-IN",
	Label:          "English",
	Language:       "Hindi",
	Strings: Strings{
		Welcome:          `"अपने दिल की बात कहें, प्राचीन ज्ञान आपका मार्गदर्शन करेगा।"`,
		Error:            "संपर्क करने में असमर्थ।",
		QuotaError:       "एपीआई कोटा पार हो गया है। कृपया बाद में पुन: प्रयास करें।",
		PermissionDenied: "माइक्रोफ़ोन की अनुमति नहीं मिली।",
		CaptureFailed:    "सुनने में विफल। फिर से प्रयास करें।",
		PlaybackFailed:   "मार्गदर्शन बोलकर सुनाने में असमर्थ।",
		Unsupported:      "इस सिस्टम पर वाक् पहचान उपलब्ध नहीं है।",
	},
}
