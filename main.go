package main

import "github.com/voicenotehq/voicenote/cmd"

func main() {
	cmd.Execute()
}
