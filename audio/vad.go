// Package audio gère la capture micro, la détection de parole par niveau,
// l'encodage WAV des clips et la lecture des réponses synthétisées.
package audio

import "time"

// NoSpeechTimeout borne l'attente quand personne ne parle.
const NoSpeechTimeout = 10 * time.Second

// Level retourne l'amplitude absolue moyenne des samples, 0 pour un chunk vide.
// Les seuils sont exprimés dans cette unité (500 par défaut, 100 à 2000) :
// ne pas la remplacer par un RMS ou des dB.
func Level(chunk []int16) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sum float64
	for _, s := range chunk {
		// float64 avant abs : -32768 ne tient pas en int16 positif
		v := float64(s)
		if v < 0 {
			v = -v
		}
		sum += v
	}
	return sum / float64(len(chunk))
}

// SilenceChunks convertit une durée de silence en nombre de chunks, tronqué :
// 1.5s à 16kHz avec des chunks de 1024 samples donne 23.
func SilenceChunks(silenceDuration float64, sampleRate, chunkSize int) int {
	return int(silenceDuration * float64(sampleRate) / float64(chunkSize))
}

func chunksFor(d time.Duration, sampleRate, chunkSize int) int {
	return SilenceChunks(d.Seconds(), sampleRate, chunkSize)
}
