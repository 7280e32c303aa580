package errors

// Language codes supported for user-facing messages.
const (
	LangEnglish    = "en"
	LangIndonesian = "id"
)

var userMessages = map[string]map[Kind]string{
	LangEnglish: {
		KindInvalidCredentials: "Incorrect email or password. Please try again.",
		KindUserNotFound:       "Email is not registered. Please sign up first.",
		KindAlreadyExists:      "An account with this email already exists. Please sign in instead.",
		KindValidation:         "Some registration details are invalid. Please check and try again.",
		KindForbidden:          "Access denied.",
		KindAccountInactive:    "Your account is not active. Please contact support.",
		KindInvalidToken:       "Your session has expired. Please sign in again.",
		KindNetwork:            "Unable to connect. Please check your internet connection.",
		KindTimeout:            "The request timed out. Please try again.",
		KindUnavailable:        "The service is temporarily unavailable. Please try again later.",
		KindStorage:            "Unable to save your session on this device.",
		KindUnknown:            "Something went wrong. Please try again.",
	},
	LangIndonesian: {
		KindInvalidCredentials: "Email atau kata sandi salah. Silakan coba lagi.",
		KindUserNotFound:       "Email belum terdaftar. Silakan daftar terlebih dahulu.",
		KindAlreadyExists:      "Akun dengan email ini sudah ada. Silakan masuk.",
		KindValidation:         "Beberapa data pendaftaran tidak valid. Silakan periksa kembali.",
		KindForbidden:          "Akses ditolak.",
		KindAccountInactive:    "Akun Anda tidak aktif. Silakan hubungi dukungan.",
		KindInvalidToken:       "Sesi Anda telah berakhir. Silakan masuk kembali.",
		KindNetwork:            "Tidak dapat terhubung. Periksa koneksi internet Anda.",
		KindTimeout:            "Permintaan melebihi batas waktu. Silakan coba lagi.",
		KindUnavailable:        "Layanan sedang tidak tersedia. Silakan coba lagi nanti.",
		KindStorage:            "Tidak dapat menyimpan sesi di perangkat ini.",
		KindUnknown:            "Terjadi kesalahan. Silakan coba lagi.",
	},
}

// UserMessage returns a localized, actionable message for err. Unknown
// languages fall back to English.
func UserMessage(err error, lang string) string {
	msgs, ok := userMessages[lang]
	if !ok {
		msgs = userMessages[LangEnglish]
	}
	kind := KindOf(err)
	if kind == KindInternal {
		kind = KindUnknown
	}
	if m, ok := msgs[kind]; ok {
		return m
	}
	return msgs[KindUnknown]
}
