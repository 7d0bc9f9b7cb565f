package models

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
)

// Config holds all the application config values.
// Not really a classical model since not saved into DB.
type Config struct {
	AdminEmail            string        // ADMINEMAIL
	APIBaseURL            *url.URL      // APIBASEURL
	Debug                 bool          // DEBUG
	Port                  int           // PORT
	Host                  string        // HOST
	DbType                string        // DBTYPE
	DbDSN                 string        // DBDSN
	EnableNotifications   bool          // ENABLENOTIFICATIONS
	EnableSSEFallback     bool          // ENABLESSEFALLBACK
	MaxBodySize           int64         // MAXBODYSIZE
	OrgName               string        // ORGNAME
	LogoURL               *url.URL      // LOGOURL
	SigningKey            string        // SIGNINGKEY
	EncryptionKey         string        // ENCRYPTIONKEY
	OriginalIPHeader      string        // ORIGINALIPHEADER
	OriginalProtoHeader   string        // ORIGINALPROTOHEADER
	SSLMode               string        // SSLMODE
	SSLAutoCertsDir       string        // SSLAUTOCERTSDIR
	SSLCustomCertPath     string        // SSLCUSTOMCERTPATH
	SSLCustomKeyPath      string        // SSLCUSTOMKEYPATH
	VapidPublicKey        string        // VAPIDPUBLICKEY
	VapidPrivateKey       string        // VAPIDPRIVATEKEY
	SubscriptionRetention int           // SUBSCRIPTIONRETENTION, in days
	NotificationTTL       int           // NOTIFICATIONTTL, in seconds
}

func (config *Config) New() Config {
	var defaultConfig = Config{
		DbType:                "sqlite",
		DbDSN:                 "/tmp/inboxpush.db",
		Debug:                 false,
		Port:                  8080,
		Host:                  "127.0.0.1",
		EnableNotifications:   true,
		EnableSSEFallback:     true,
		MaxBodySize:           4096, // 4KB
		OrgName:               "Inbox",
		SubscriptionRetention: 90,
		NotificationTTL:       60,
		SSLMode:               "off",
		SSLAutoCertsDir:       "/tmp",
		SSLCustomCertPath:     "/ssl/cert.pem",
		SSLCustomKeyPath:      "/ssl/key.pem",
		OriginalProtoHeader:   "X-Forwarded-Proto",
	}
	apiBase, _ := url.Parse(fmt.Sprintf("http://%s:%v", defaultConfig.Host, defaultConfig.Port))
	defaultConfig.APIBaseURL = apiBase
	// We create a default random key for signing session tokens
	b := make([]byte, 32) // random ID
	rand.Read(b)
	key := base64.URLEncoding.EncodeToString(b)
	defaultConfig.SigningKey = key

	return defaultConfig
}

// KeyChecker validates an application server key. Satisfied by
// subscriber.DecodeKey, injected to avoid an import cycle.
type KeyChecker func(string) ([]byte, error)

func (config *Config) Verify(checkKey KeyChecker) {
	log.Printf("Push subscriptions retention set to %d days", config.SubscriptionRetention)

	if config.EncryptionKey == "" {
		log.Fatal("ENCRYPTIONKEY is required to store push subscriptions. You can use `openssl rand -hex 16` to generate it")
	} else if len(config.EncryptionKey) != 32 {
		log.Fatal("ENCRYPTIONKEY must be 32 characters")
	}

	if config.EnableNotifications {
		if config.AdminEmail == "" {
			log.Fatal("FATAL: ENABLENOTIFICATIONS is true, so ADMINEMAIL must be set to a valid email address.")
		}
		if config.VapidPrivateKey == "" || config.VapidPublicKey == "" {
			log.Printf("FATAL: ENABLENOTIFICATIONS is true, so VAPIDPRIVATEKEY and VAPIDPUBLICKEY must be defined and valid")
			log.Printf("If you have never defined them, here are some fresh values generated just for you.")
			if privateKey, publicKey, err := webpush.GenerateVAPIDKeys(); err == nil {
				log.Printf("VAPIDPUBLICKEY=\"%s\"", publicKey)
				log.Printf("VAPIDPRIVATEKEY=\"%s\"", privateKey)
			}
			log.Fatal("Add them to the environment variables. VAPIDPRIVATEKEY is sensitive, keep it secret.")
		}
		if checkKey != nil {
			if _, err := checkKey(config.VapidPublicKey); err != nil {
				log.Fatalf("VAPIDPUBLICKEY is not a valid application server key: %s", err.Error())
			}
		}
	}
	config.SSLMode = strings.ToLower(config.SSLMode)
	if config.SSLMode != "off" && config.SSLMode != "auto" && config.SSLMode != "custom" && config.SSLMode != "proxy" {
		log.Fatal("SSLMODE must be one of off, auto, custom, proxy")
	}
}
