package config

import "time"

type MockConfig interface {
	GetMockLoginDelay() time.Duration
	GetMockRegisterDelay() time.Duration
	GetMockAPIDelay() time.Duration
}

type Mock struct {
	LoginDelay    time.Duration `env:"MOCK_LOGIN_DELAY" envDefault:"1000ms"`
	RegisterDelay time.Duration `env:"MOCK_REGISTER_DELAY" envDefault:"1500ms"`
	APIDelay      time.Duration `env:"MOCK_API_DELAY" envDefault:"800ms"`
}

var _ MockConfig = Mock{}

func (m Mock) GetMockLoginDelay() time.Duration {
	return m.LoginDelay
}

func (m Mock) GetMockRegisterDelay() time.Duration {
	return m.RegisterDelay
}

func (m Mock) GetMockAPIDelay() time.Duration {
	return m.APIDelay
}
