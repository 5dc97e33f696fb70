// Copyright 2025 Screentape, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"time"

	"github.com/screentape/screentape/pkg/util"
)

type StorageConfig struct {
	Prefix string `yaml:"prefix"` // prefix applied to all filenames

	S3     *S3Config     `yaml:"s3"`     // upload to s3
	Azure  *AzureConfig  `yaml:"azure"`  // upload to azure
	GCP    *GCPConfig    `yaml:"gcp"`    // upload to gcp
	AliOSS *AliOSSConfig `yaml:"alioss"` // upload to aliyun
}

type S3Config struct {
	AccessKey      string       `yaml:"access_key"`    // (env AWS_ACCESS_KEY_ID)
	Secret         string       `yaml:"secret"`        // (env AWS_SECRET_ACCESS_KEY)
	SessionToken   string       `yaml:"session_token"` // (env AWS_SESSION_TOKEN)
	Region         string       `yaml:"region"`        // (env AWS_DEFAULT_REGION)
	Endpoint       string       `yaml:"endpoint"`
	Bucket         string       `yaml:"bucket"`
	ForcePathStyle bool         `yaml:"force_path_style"`
	ProxyConfig    *ProxyConfig `yaml:"proxy_config"`

	MaxRetries    int           `yaml:"max_retries"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay"`

	Metadata           map[string]string `yaml:"metadata"`
	Tagging            string            `yaml:"tagging"`
	ContentDisposition string            `yaml:"content_disposition"`
}

type AzureConfig struct {
	AccountName   string `yaml:"account_name"` // (env AZURE_STORAGE_ACCOUNT)
	AccountKey    string `yaml:"account_key"`  // (env AZURE_STORAGE_KEY)
	ContainerName string `yaml:"container_name"`
}

type GCPConfig struct {
	CredentialsJSON string       `yaml:"credentials_json"` // (env GOOGLE_APPLICATION_CREDENTIALS)
	Bucket          string       `yaml:"bucket"`
	ProxyConfig     *ProxyConfig `yaml:"proxy_config"`
}

type AliOSSConfig struct {
	AccessKey string `yaml:"access_key"`
	Secret    string `yaml:"secret"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
}

type ProxyConfig struct {
	Url      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (c *StorageConfig) applyDefaults() {
	if s3 := c.S3; s3 != nil {
		if s3.MaxRetries == 0 {
			s3.MaxRetries = 5
		}
		if s3.MaxRetryDelay == 0 {
			s3.MaxRetryDelay = time.Second * 5
		}
	}
}

func (c *StorageConfig) IsLocal() bool {
	return c.S3 == nil && c.GCP == nil && c.Azure == nil && c.AliOSS == nil
}

// Redacted returns a copy with credentials masked, safe for logging.
func (c *StorageConfig) Redacted() *StorageConfig {
	clone := *c
	if s3 := c.S3; s3 != nil {
		cp := *s3
		cp.AccessKey = util.Redact(s3.AccessKey, "{access_key}")
		cp.Secret = util.Redact(s3.Secret, "{secret}")
		cp.SessionToken = util.Redact(s3.SessionToken, "{session_token}")
		cp.ProxyConfig = s3.ProxyConfig.redacted()
		clone.S3 = &cp
	}
	if gcp := c.GCP; gcp != nil {
		cp := *gcp
		cp.CredentialsJSON = util.Redact(gcp.CredentialsJSON, "{credentials_json}")
		cp.ProxyConfig = gcp.ProxyConfig.redacted()
		clone.GCP = &cp
	}
	if azure := c.Azure; azure != nil {
		cp := *azure
		cp.AccountName = util.Redact(azure.AccountName, "{account_name}")
		cp.AccountKey = util.Redact(azure.AccountKey, "{account_key}")
		clone.Azure = &cp
	}
	if ali := c.AliOSS; ali != nil {
		cp := *ali
		cp.AccessKey = util.Redact(ali.AccessKey, "{access_key}")
		cp.Secret = util.Redact(ali.Secret, "{secret}")
		clone.AliOSS = &cp
	}
	return &clone
}

func (p *ProxyConfig) redacted() *ProxyConfig {
	if p == nil {
		return nil
	}
	return &ProxyConfig{
		Url:      p.Url,
		Username: util.Redact(p.Username, "{username}"),
		Password: util.Redact(p.Password, "{password}"),
	}
}
