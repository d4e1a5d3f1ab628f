// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package view

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message/catalog"
)

// Message keys.
const (
	keyIdle          = "Waiting"
	keyRunning       = "Export running"
	keyPaused        = "Export paused"
	keyDone          = "Export finished"
	keyCompleted     = "Done"
	keyProgress      = "%s/%s — %d%%"
	keyETA           = "%s, ⏳ %s"
	keyStarting      = "Starting the system..."
	keyPreparing     = "We are preparing your environment."
	keyHealthFailed  = "The backend is taking a long time to start or ran into an error."
	keyRetry         = "Retry"
	keyFailureReason = "%s: %s"
	keyNoFailures    = "No failed files"
	keyPageOf        = "Page %s of %s"
	keyNoDownloads   = "No downloads yet"
)

var translations = map[language.Tag]map[string]string{
	language.French: {
		keyIdle:          "En attente",
		keyRunning:       "Export en cours",
		keyPaused:        "Export en pause",
		keyDone:          "Export terminé",
		keyCompleted:     "Terminé",
		keyProgress:      "%s/%s — %d%%",
		keyETA:           "%s, ⏳ %s",
		keyStarting:      "Démarrage du système...",
		keyPreparing:     "Nous préparons votre environnement.",
		keyHealthFailed:  "Le backend semble mettre du temps à démarrer ou a rencontré une erreur.",
		keyRetry:         "Réessayer",
		keyFailureReason: "%s : %s",
		keyNoFailures:    "Aucun fichier en échec",
		keyPageOf:        "Page %s sur %s",
		keyNoDownloads:   "Aucun téléchargement pour le moment",
	},
	language.English: {
		keyIdle:          keyIdle,
		keyRunning:       keyRunning,
		keyPaused:        keyPaused,
		keyDone:          keyDone,
		keyCompleted:     keyCompleted,
		keyProgress:      keyProgress,
		keyETA:           keyETA,
		keyStarting:      keyStarting,
		keyPreparing:     keyPreparing,
		keyHealthFailed:  keyHealthFailed,
		keyRetry:         keyRetry,
		keyFailureReason: keyFailureReason,
		keyNoFailures:    keyNoFailures,
		keyPageOf:        keyPageOf,
		keyNoDownloads:   keyNoDownloads,
	},
}

var timeLayouts = map[language.Tag]string{
	language.French:  "02/01/2006 15:04:05",
	language.English: "2006-01-02 15:04:05",
}

func newCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.French))
	for tag, msgs := range translations {
		for key, msg := range msgs {
			// keys and messages are static; SetString only fails on malformed tags
			_ = b.SetString(tag, key, msg)
		}
	}
	return b
}
