package model

import "fmt"

func placeholderImage(fill, label string) string {
	return fmt.Sprintf("data:image/svg+xml,%%3Csvg xmlns='http://www.w3.org/2000/svg' width='400' height='300'%%3E"+
		"%%3Crect width='400' height='300' fill='%%23%s'/%%3E"+
		"%%3Ctext x='200' y='150' text-anchor='middle' fill='white' font-size='20' font-family='Arial'%%3E%s%%3C/text%%3E%%3C/svg%%3E",
		fill, label)
}

// Default returns a fresh copy of the compiled-in document. Every call builds
// a new value, so callers may mutate the result freely.
func Default() *ContentDocument {
	doc := &ContentDocument{
		Personal: Personal{
			RecipientName:     "Beautiful",
			AuthorName:        "Your devoted partner",
			RelationshipStart: "2023-01-15",
			SpecialEventDate:  "2024-08-15",
			WebsiteTitle:      "Happy Birthday, Beautiful! 💕",
		},
		Hero: Hero{
			Greeting:            "Happy Birthday",
			Subtitle:            "Today is all about celebrating the most amazing person in my life",
			PrimaryButtonText:   "Start the Surprise",
			SecondaryButtonText: "Read My Message",
		},
		Message: Message{
			Title: "A Message From My Heart",
			Content: "My dearest love,\n\n" +
				"Today marks another year of your incredible journey, and I feel so blessed to be part of it. " +
				"You bring light to every room you enter, joy to every moment we share, and love to every corner of my heart.\n\n" +
				"This website is my small way of celebrating you and all the beautiful memories we've created together.\n\n" +
				"Happy Birthday, my love. Here's to many more adventures together! 💕\n\n" +
				"With all my love,\nYour devoted partner",
		},
		Gallery: []GalleryItem{
			{Image: placeholderImage("ff69b4", "📸 Memory 1"), Caption: "Our first adventure together", Date: "2023-01-20"},
			{Image: placeholderImage("ff1493", "🌅 Memory 2"), Caption: "That perfect sunset", Date: "2023-02-14"},
			{Image: placeholderImage("ff69b4", "😂 Memory 3"), Caption: "Laughing until our stomachs hurt", Date: "2023-03-10"},
			{Image: placeholderImage("ff1493", "💃 Memory 4"), Caption: "Dancing in the kitchen", Date: "2023-04-05"},
			{Image: placeholderImage("ff69b4", "🍿 Memory 5"), Caption: "Our cozy movie nights", Date: "2023-05-12"},
			{Image: placeholderImage("ff1493", "🗺️ Memory 6"), Caption: "Exploring new places together", Date: "2023-06-18"},
		},
		Timeline: []TimelineEntry{
			{Date: "January 2023", Title: "First Meeting", Description: "The day our eyes first met and I knew something special was beginning."},
			{Date: "March 2023", Title: "First Date", Description: "Coffee turned into hours of conversation. I never wanted it to end."},
			{Date: "June 2023", Title: "First Adventure", Description: "Our first trip together - creating memories that would last forever."},
			{Date: "September 2023", Title: "Moving In Together", Description: "Making our house a home, together."},
			{Date: "December 2023", Title: "First Christmas", Description: "Celebrating our first holiday season as a couple."},
		},
		Countdown: Countdown{
			Title:     "Countdown to Something Special",
			Subtitle:  "The excitement is building...",
			EventName: "Our Special Day",
		},
		Surprises: []Surprise{
			{Icon: "🎁", Title: "Surprise Gift", Hint: "Click to reveal your special gift!", Content: "A romantic dinner reservation at your favorite restaurant this weekend! 🍽️✨"},
			{Icon: "💌", Title: "Love Letter", Hint: "A message from my heart", Content: "You are the sunshine in my cloudy days, the melody in my silence, and the love of my life. 💕"},
			{Icon: "🎵", Title: "Our Song", Hint: "The soundtrack to our love", Content: "I've created a playlist of all the songs that remind me of you. 🎶"},
			{Icon: "📸", Title: "Memory Book", Hint: "A collection of our moments", Content: "I'm creating a photo album of all our adventures. 📚"},
			{Icon: "🌟", Title: "Future Plans", Hint: "Dreams we'll make reality", Content: "I've been planning our next adventure... Paris in the spring? 🗼"},
			{Icon: "💎", Title: "Special Surprise", Hint: "Something sparkly awaits...", Content: "Check your jewelry box tonight... ✨"},
		},
		Quiz: Quiz{
			Title:    "How Well Do You Know Us?",
			Subtitle: "A fun little quiz about our relationship",
			Questions: []Question{
				{Question: "What was the first movie we watched together?", Options: []string{"The Notebook", "Titanic", "La La Land", "Pride and Prejudice"}, Correct: 2},
				{Question: "What's my favorite thing about you?", Options: []string{"Your smile", "Your laugh", "Your kindness", "Everything"}, Correct: 3},
				{Question: "Where was our first kiss?", Options: []string{"In the park", "At the coffee shop", "Under the stars", "In the rain"}, Correct: 2},
				{Question: "What's our favorite activity together?", Options: []string{"Cooking", "Dancing", "Traveling", "Cuddling and watching movies"}, Correct: 3},
				{Question: "What do I love most about our relationship?", Options: []string{"How we laugh together", "How we support each other", "How we dream together", "All of the above"}, Correct: 3},
			},
			CompletionMessage: CompletionMessage{
				Title:   "You know us so well!",
				Message: "Thank you for being the most amazing partner. Every day with you is a gift! 💕",
			},
		},
		Theme: Theme{
			PrimaryColor:   "#ff69b4",
			SecondaryColor: "#ff1493",
			AccentColor:    "#ffd700",
		},
	}
	if err := doc.Validate(); err != nil {
		panic(err)
	}
	return doc
}
