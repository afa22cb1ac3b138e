// Command smartnpc-mockserver runs a scripted SmartNPC backend for local
// development and CI.
//
// Configuration is read from the environment:
//
//	SERVER_ADDR      listen address (default :8080)
//	MOCK_KEYS        accepted credentials, "keyId:publicKey,..." (default any)
//	CHARACTERS_FILE  YAML list of characters (default demo cast)
//	REDIS_ADDR       keep history in Redis
//	HISTORY_DIR      keep history in Badger
//	WORD_DELAY_MS    pause between reply frames (default 80)
//	SPEECH_IDLE_MS   silence that completes a speech session (default 500)
//	TRANSCRIPT       what speech recognition hears
//	VOICE            "tone" to attach audio to replies
//	LOG_LEVEL        debug, info, warn or error
package main

import "go.uber.org/fx"

func main() {
	fx.New(
		fx.Provide(LoadConfig),
		ServerModule,
	).Run()
}
