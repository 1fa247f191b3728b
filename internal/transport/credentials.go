package transport

import (
	"os"

	"github.com/caarlos0/env/v11"
)

// CredentialsProvider tells the remote-session transport whether it has
// what it needs to authenticate.
type CredentialsProvider interface {
	HasCredentials() bool
}

type StaticCredentials bool

func (s StaticCredentials) HasCredentials() bool { return bool(s) }

type awsCredentials struct {
	AccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	SessionToken    string `env:"AWS_SESSION_TOKEN"`
}

var awsCredentialParams = env.Must(env.GetFieldParams(&awsCredentials{}))

// EnvCredentials reports credentials when any AWS key variable is set, even
// to an empty value. Environ replaces the process environment when non-nil.
type EnvCredentials struct {
	Environ map[string]string
}

func (e EnvCredentials) HasCredentials() bool {
	environ := e.Environ
	if environ == nil {
		environ = env.ToMap(os.Environ())
	}
	for _, p := range awsCredentialParams {
		if _, ok := environ[p.Key]; ok {
			return true
		}
	}
	return false
}
